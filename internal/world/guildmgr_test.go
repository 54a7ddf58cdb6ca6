package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuildManagerIndexes(t *testing.T) {
	m := NewGuildManager()
	g := NewGuild(7, "Dawn Patrol", newTestPlayer(1, "Aria"), 10, 0)
	m.Add(g)

	assert.Same(t, g, m.GetByID(7))
	assert.Same(t, g, m.GetByLeader(1))
	assert.True(t, m.NameExists("dawn patrol"))
	assert.True(t, m.NameExists("DAWN PATROL"))
	assert.False(t, m.NameExists("dusk"))
	assert.Equal(t, 1, m.Count())

	m.Remove(7)
	assert.Nil(t, m.GetByID(7))
	assert.Nil(t, m.GetByLeader(1))
	assert.False(t, m.NameExists("dawn patrol"))
}

func TestGuildManagerUpdateLeader(t *testing.T) {
	m := NewGuildManager()
	g := NewGuild(7, "Dawn", newTestPlayer(1, "Aria"), 10, 0)
	m.Add(g)

	m.UpdateLeader(7, 1, 2)
	assert.Nil(t, m.GetByLeader(1))
	assert.Same(t, g, m.GetByLeader(2))
}

func TestGuildManagerListOrderedByID(t *testing.T) {
	m := NewGuildManager()
	m.Add(NewGuild(3, "C", newTestPlayer(30, "c"), 10, 0))
	m.Add(NewGuild(1, "A", newTestPlayer(10, "a"), 10, 0))
	m.Add(NewGuild(2, "B", newTestPlayer(20, "b"), 10, 0))

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, int64(2), list[1].ID)
	assert.Equal(t, int64(3), list[2].ID)
}

func TestGuildManagerSearchByName(t *testing.T) {
	m := NewGuildManager()
	m.Add(NewGuild(1, "Dawn Patrol", newTestPlayer(10, "a"), 10, 0))
	m.Add(NewGuild(2, "Midnight Dawn", newTestPlayer(20, "b"), 10, 0))
	m.Add(NewGuild(3, "Dusk", newTestPlayer(30, "c"), 10, 0))

	hits := m.SearchByName("dawn")
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, int64(2), hits[1].ID)

	assert.Empty(t, m.SearchByName("zzz"))
}

func TestApplicationsForRebuildsPlayerSide(t *testing.T) {
	m := NewGuildManager()
	g := NewGuild(7, "Dawn", newTestPlayer(1, "Aria"), 10, 0)
	g.AddApplication(&GuildApplication{ID: 42, CharID: 2, GuildID: 7})
	g.AddApplication(&GuildApplication{ID: 43, CharID: 3, GuildID: 7})
	m.Add(g)
	g2 := NewGuild(8, "Dusk", newTestPlayer(4, "Dana"), 10, 0)
	g2.AddApplication(&GuildApplication{ID: 44, CharID: 2, GuildID: 8})
	m.Add(g2)

	// A character record rebuilt at world entry starts empty; the guild
	// side is the durable copy it has to be restored from.
	applicant := newTestPlayer(2, "Bran")
	for _, app := range m.ApplicationsFor(2) {
		applicant.AddApplication(app)
	}

	require.Equal(t, 2, applicant.ApplicationCount())

	// Withdraw works again after the restore.
	removed := applicant.RemoveApplication(42)
	require.NotNil(t, removed)
	assert.Equal(t, int64(7), removed.GuildID)
	assert.Equal(t, 1, applicant.ApplicationCount())

	assert.Empty(t, m.ApplicationsFor(99))
}

func TestApplicationIDCounter(t *testing.T) {
	m := NewGuildManager()
	m.SeedApplicationID(100)
	assert.Equal(t, int64(101), m.NextApplicationID())
	assert.Equal(t, int64(102), m.NextApplicationID())
}
