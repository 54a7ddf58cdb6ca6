package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *GuildTable {
	return NewGuildTable(
		[]GuildProperty{
			{Level: 1, AccumExp: 0, Capacity: 10, DonationMax: 3, AttendExp: 100, AttendFunds: 300, AttendGuildCoin: 10, DonateGuildCoin: 25},
			{Level: 2, AccumExp: 10000, Capacity: 20, DonationMax: 3},
			{Level: 3, AccumExp: 35000, Capacity: 30, DonationMax: 3},
		},
		[]GuildBuffLevel{
			{ID: 1, Level: 1, Cost: 500, UpgradeCost: 2000, LevelRequirement: 1, EffectID: 70000101},
			{ID: 1, Level: 2, Cost: 800, LevelRequirement: 2},
		},
		[]GuildServiceLevel{
			{ID: 1, Level: 1, UpgradeCost: 3000, LevelRequirement: 1, HouseLevelRequirement: 1},
		},
		[]GuildHouse{
			{Rank: 1, Theme: 1, FieldID: 62000001, RethemeCost: 1000, RequiredLevel: 1},
			{Rank: 2, Theme: 1, FieldID: 62000011, UpgradeCost: 20000, RequiredLevel: 2},
		},
		map[string]int32{"attend": 5, "donation": 10},
		[]string{"admin", "管理員"},
	)
}

func TestPropertyByExpPicksHighestReachedThreshold(t *testing.T) {
	tbl := testTable()

	p := tbl.PropertyByExp(0)
	require.NotNil(t, p)
	assert.Equal(t, int32(1), p.Level)

	p = tbl.PropertyByExp(9999)
	require.NotNil(t, p)
	assert.Equal(t, int32(1), p.Level)

	p = tbl.PropertyByExp(10000)
	require.NotNil(t, p)
	assert.Equal(t, int32(2), p.Level)

	p = tbl.PropertyByExp(1_000_000)
	require.NotNil(t, p)
	assert.Equal(t, int32(3), p.Level)
}

func TestBuffAndServiceLookups(t *testing.T) {
	tbl := testTable()

	b := tbl.BuffLevel(1, 1)
	require.NotNil(t, b)
	assert.Equal(t, int64(500), b.Cost)

	assert.Nil(t, tbl.BuffLevel(1, 3))
	assert.Nil(t, tbl.BuffLevel(99, 1))

	s := tbl.ServiceLevel(1, 1)
	require.NotNil(t, s)
	assert.Equal(t, int64(3000), s.UpgradeCost)
	assert.Nil(t, tbl.ServiceLevel(1, 2))
}

func TestHouseFieldID(t *testing.T) {
	tbl := testTable()
	assert.Equal(t, int32(62000001), tbl.HouseFieldID(1, 1))
	assert.Equal(t, int32(0), tbl.HouseFieldID(1, 9))
}

func TestContributionAmount(t *testing.T) {
	tbl := testTable()
	assert.Equal(t, int32(5), tbl.ContributionAmount("attend"))
	assert.Equal(t, int32(10), tbl.ContributionAmount("donation"))
	assert.Equal(t, int32(0), tbl.ContributionAmount("unknown"))
}

func TestNameForbidden(t *testing.T) {
	tbl := testTable()
	assert.True(t, tbl.NameForbidden("AdminSquad"))
	assert.True(t, tbl.NameForbidden("天堂管理員"))
	assert.False(t, tbl.NameForbidden("Dawn Patrol"))
}
