package world

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// GuildManager is the process-wide registry of live guild aggregates,
// indexed by id, leader character and lowercase name. It owns aggregate
// lifetime; individual guilds carry their own locks. The registry lock is
// never held while a guild lock is taken on another goroutine's behalf —
// lookups copy the pointer out and release.
type GuildManager struct {
	mu        sync.RWMutex
	byID      map[int64]*Guild
	byLeader  map[int64]int64  // leader charID → guildID
	byName    map[string]int64 // lowercase name → guildID
	nextAppID atomic.Int64
}

func NewGuildManager() *GuildManager {
	return &GuildManager{
		byID:     make(map[int64]*Guild),
		byLeader: make(map[int64]int64),
		byName:   make(map[string]int64),
	}
}

// SeedApplicationID sets the application id counter; called at boot with
// the highest persisted id.
func (m *GuildManager) SeedApplicationID(max int64) {
	m.nextAppID.Store(max)
}

// NextApplicationID returns a fresh process-unique application id.
func (m *GuildManager) NextApplicationID() int64 {
	return m.nextAppID.Add(1)
}

// Add registers a guild. Called after the persisted row exists.
func (m *GuildManager) Add(g *Guild) {
	m.mu.Lock()
	m.byID[g.ID] = g
	m.byLeader[g.LeaderCharID] = g.ID
	m.byName[strings.ToLower(g.Name)] = g.ID
	m.mu.Unlock()
}

// Remove deindexes a guild. Called after pending applications are cleared.
func (m *GuildManager) Remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.byID[id]
	if g == nil {
		return
	}
	delete(m.byLeader, g.LeaderCharID)
	delete(m.byName, strings.ToLower(g.Name))
	delete(m.byID, id)
}

// UpdateLeader reindexes after a leadership transfer.
func (m *GuildManager) UpdateLeader(guildID, oldLeader, newLeader int64) {
	m.mu.Lock()
	if m.byLeader[oldLeader] == guildID {
		delete(m.byLeader, oldLeader)
	}
	m.byLeader[newLeader] = guildID
	m.mu.Unlock()
}

// GetByID returns a guild by its id, or nil.
func (m *GuildManager) GetByID(id int64) *Guild {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// GetByLeader returns the guild a character leads, or nil.
func (m *GuildManager) GetByLeader(charID int64) *Guild {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byLeader[charID]
	if !ok {
		return nil
	}
	return m.byID[id]
}

// ApplicationsFor returns every pending application a character has across
// all guilds, ordered by id. The guild side is the durable copy; this scan
// rebuilds the player-side record at world entry.
func (m *GuildManager) ApplicationsFor(charID int64) []*GuildApplication {
	var out []*GuildApplication
	for _, g := range m.List() {
		g.Lock()
		for _, app := range g.Applications {
			if app.CharID == charID {
				out = append(out, app)
			}
		}
		g.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NameExists reports whether a guild with this name exists (case-insensitive).
func (m *GuildManager) NameExists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byName[strings.ToLower(name)]
	return ok
}

// Count returns the number of live guilds.
func (m *GuildManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// List returns all guilds ordered by id.
func (m *GuildManager) List() []*Guild {
	m.mu.RLock()
	out := make([]*Guild, 0, len(m.byID))
	for _, g := range m.byID {
		out = append(out, g)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SearchByName returns guilds whose name contains needle, case-insensitive.
// The scan is not transactional with concurrent renames: a rename mid-scan
// may or may not appear, which is acceptable for this lookup.
func (m *GuildManager) SearchByName(needle string) []*Guild {
	needle = strings.ToLower(needle)
	m.mu.RLock()
	out := make([]*Guild, 0)
	for lower, id := range m.byName {
		if strings.Contains(lower, needle) {
			if g := m.byID[id]; g != nil {
				out = append(out, g)
			}
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
