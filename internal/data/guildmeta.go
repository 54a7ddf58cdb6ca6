package data

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GuildProperty is one guild-level row: the exp threshold that unlocks the
// level and the constants that scale with it.
type GuildProperty struct {
	Level           int32 `yaml:"level"`
	AccumExp        int64 `yaml:"accum_exp"`
	Capacity        int   `yaml:"capacity"`
	DonationMax     int   `yaml:"donation_max"`
	AttendExp       int64 `yaml:"attend_exp"`
	AttendFunds     int64 `yaml:"attend_funds"`
	AttendGuildCoin int32 `yaml:"attend_guild_coin"`
	DonateGuildCoin int32 `yaml:"donate_guild_coin"`
}

// GuildBuffLevel is one (buff id, level) row.
type GuildBuffLevel struct {
	ID               int32 `yaml:"id"`
	Level            int32 `yaml:"level"`
	Cost             int64 `yaml:"cost"`
	UpgradeCost      int64 `yaml:"upgrade_cost"`
	LevelRequirement int32 `yaml:"level_requirement"`
	EffectID         int32 `yaml:"effect_id"`
	DurationSec      int32 `yaml:"duration_sec"`
}

// GuildServiceLevel is one (service id, level) row.
type GuildServiceLevel struct {
	ID                    int32 `yaml:"id"`
	Level                 int32 `yaml:"level"`
	UpgradeCost           int64 `yaml:"upgrade_cost"`
	LevelRequirement      int32 `yaml:"level_requirement"`
	HouseLevelRequirement int32 `yaml:"house_level_requirement"`
}

// GuildHouse is one (house rank, theme) row.
type GuildHouse struct {
	Rank          int32 `yaml:"rank"`
	Theme         int32 `yaml:"theme"`
	FieldID       int32 `yaml:"field_id"`
	UpgradeCost   int64 `yaml:"upgrade_cost"`
	RethemeCost   int64 `yaml:"retheme_cost"`
	RequiredLevel int32 `yaml:"required_level"`
}

type buffKey struct{ id, level int32 }
type serviceKey struct{ id, level int32 }
type houseKey struct{ rank, theme int32 }

// GuildTable provides all guild metadata lookups. Read-only after load;
// a missing row means "feature unavailable" and callers drop the request.
type GuildTable struct {
	properties    []GuildProperty // ascending by AccumExp
	buffs         map[buffKey]*GuildBuffLevel
	services      map[serviceKey]*GuildServiceLevel
	houses        map[houseKey]*GuildHouse
	contributions map[string]int32
	forbidden     []string
}

// NewGuildTable assembles a table from already-parsed rows. The YAML loader
// and tests both go through here.
func NewGuildTable(props []GuildProperty, buffs []GuildBuffLevel, services []GuildServiceLevel,
	houses []GuildHouse, contributions map[string]int32, forbidden []string) *GuildTable {
	t := &GuildTable{
		properties:    props,
		buffs:         make(map[buffKey]*GuildBuffLevel, len(buffs)),
		services:      make(map[serviceKey]*GuildServiceLevel, len(services)),
		houses:        make(map[houseKey]*GuildHouse, len(houses)),
		contributions: contributions,
		forbidden:     forbidden,
	}
	for i := range buffs {
		b := buffs[i]
		t.buffs[buffKey{b.ID, b.Level}] = &b
	}
	for i := range services {
		s := services[i]
		t.services[serviceKey{s.ID, s.Level}] = &s
	}
	for i := range houses {
		h := houses[i]
		t.houses[houseKey{h.Rank, h.Theme}] = &h
	}
	return t
}

type guildPropertyFile struct {
	Properties []GuildProperty `yaml:"properties"`
}

type guildBuffFile struct {
	Buffs []GuildBuffLevel `yaml:"buffs"`
}

type guildServiceFile struct {
	Services []GuildServiceLevel `yaml:"services"`
}

type guildHouseFile struct {
	Houses []GuildHouse `yaml:"houses"`
}

type guildContributionFile struct {
	Contributions  map[string]int32 `yaml:"contributions"`
	ForbiddenNames []string         `yaml:"forbidden_names"`
}

// LoadGuildTable loads all guild metadata from the yaml directory.
// Files: guild_property.yaml, guild_buff.yaml, guild_service.yaml,
// guild_house.yaml, guild_contribution.yaml.
func LoadGuildTable(dir string) (*GuildTable, error) {
	var propFile guildPropertyFile
	if err := readYAML(filepath.Join(dir, "guild_property.yaml"), &propFile); err != nil {
		return nil, err
	}
	var buffFile guildBuffFile
	if err := readYAML(filepath.Join(dir, "guild_buff.yaml"), &buffFile); err != nil {
		return nil, err
	}
	var serviceFile guildServiceFile
	if err := readYAML(filepath.Join(dir, "guild_service.yaml"), &serviceFile); err != nil {
		return nil, err
	}
	var houseFile guildHouseFile
	if err := readYAML(filepath.Join(dir, "guild_house.yaml"), &houseFile); err != nil {
		return nil, err
	}
	var contribFile guildContributionFile
	if err := readYAML(filepath.Join(dir, "guild_contribution.yaml"), &contribFile); err != nil {
		return nil, err
	}

	return NewGuildTable(
		propFile.Properties,
		buffFile.Buffs,
		serviceFile.Services,
		houseFile.Houses,
		contribFile.Contributions,
		contribFile.ForbiddenNames,
	), nil
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// PropertyByExp returns the highest property row whose exp threshold the
// guild has reached, or nil when the table is empty.
func (t *GuildTable) PropertyByExp(exp int64) *GuildProperty {
	var best *GuildProperty
	for i := range t.properties {
		p := &t.properties[i]
		if exp >= p.AccumExp && (best == nil || p.AccumExp >= best.AccumExp) {
			best = p
		}
	}
	return best
}

// BuffLevel returns the (id, level) buff row, or nil.
func (t *GuildTable) BuffLevel(id, level int32) *GuildBuffLevel {
	return t.buffs[buffKey{id, level}]
}

// ServiceLevel returns the (id, level) service row, or nil.
func (t *GuildTable) ServiceLevel(id, level int32) *GuildServiceLevel {
	return t.services[serviceKey{id, level}]
}

// House returns the (rank, theme) house row, or nil.
func (t *GuildTable) House(rank, theme int32) *GuildHouse {
	return t.houses[houseKey{rank, theme}]
}

// HouseFieldID resolves the map a guild house warps into, or 0.
func (t *GuildTable) HouseFieldID(rank, theme int32) int32 {
	h := t.houses[houseKey{rank, theme}]
	if h == nil {
		return 0
	}
	return h.FieldID
}

// ContributionAmount returns the contribution grant for a named action
// ("attend", "donation"), or 0.
func (t *GuildTable) ContributionAmount(name string) int32 {
	return t.contributions[name]
}

// NameForbidden reports whether the guild name contains a forbidden word.
func (t *GuildTable) NameForbidden(name string) bool {
	lower := strings.ToLower(name)
	for _, w := range t.forbidden {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// Counts returns table sizes for the boot banner.
func (t *GuildTable) Counts() (properties, buffs, services, houses int) {
	return len(t.properties), len(t.buffs), len(t.services), len(t.houses)
}
