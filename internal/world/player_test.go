package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifyMesoRejectsOverdraft(t *testing.T) {
	p := newTestPlayer(1, "Aria")
	p.SetMeso(500)

	assert.False(t, p.ModifyMeso(-501))
	assert.Equal(t, int64(500), p.Meso())

	assert.True(t, p.ModifyMeso(-500))
	assert.Equal(t, int64(0), p.Meso())

	assert.True(t, p.ModifyMeso(250))
	assert.Equal(t, int64(250), p.Meso())
}

func TestTakePendingInviteValidatesGuild(t *testing.T) {
	p := newTestPlayer(1, "Aria")

	// No invite on record: nothing to take.
	assert.Nil(t, p.TakePendingInvite(7))

	p.SetPendingInvite(&GuildInvite{GuildID: 7, InviterName: "Bran"})

	// Wrong guild id leaves the invite in place.
	assert.Nil(t, p.TakePendingInvite(8))

	inv := p.TakePendingInvite(7)
	require.NotNil(t, inv)
	assert.Equal(t, "Bran", inv.InviterName)

	// Single-use.
	assert.Nil(t, p.TakePendingInvite(7))
}

func TestPlayerApplications(t *testing.T) {
	p := newTestPlayer(1, "Aria")
	a := &GuildApplication{ID: 1, CharID: 1, GuildID: 7}
	b := &GuildApplication{ID: 2, CharID: 1, GuildID: 8}
	p.AddApplication(a)
	p.AddApplication(b)

	assert.Equal(t, 2, p.ApplicationCount())
	assert.Same(t, a, p.RemoveApplication(1))
	assert.Nil(t, p.RemoveApplication(1))
	assert.Equal(t, 1, p.ApplicationCount())

	cleared := p.ClearApplications()
	require.Len(t, cleared, 1)
	assert.Same(t, b, cleared[0])
	assert.Equal(t, 0, p.ApplicationCount())
}
