package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu     sync.Mutex
	id     uint64
	frames [][]byte
	online bool
}

func (f *fakeSender) ID() uint64 { return f.id }
func (f *fakeSender) Send(data []byte) {
	f.mu.Lock()
	f.frames = append(f.frames, data)
	f.mu.Unlock()
}
func (f *fakeSender) IsOnline() bool { return f.online }

func newTestPlayer(charID int64, name string) *PlayerInfo {
	return &PlayerInfo{
		CharID:    charID,
		AccountID: charID + 1000,
		Name:      name,
		Level:     10,
		Session:   &fakeSender{id: uint64(charID), online: true},
	}
}

func TestNewGuildFounderIsLeader(t *testing.T) {
	founder := newTestPlayer(1, "Aria")
	g := NewGuild(7, "Dawn", founder, 10, 1700000000)

	require.NotNil(t, g.Member(1))
	assert.Equal(t, byte(0), g.Member(1).Rank)
	assert.Equal(t, int64(1), g.LeaderCharID)
	assert.Equal(t, "Aria", g.LeaderName)
	assert.Equal(t, 1, g.MemberCount())
}

func TestAddMemberCapacityAndDuplicates(t *testing.T) {
	founder := newTestPlayer(1, "Aria")
	g := NewGuild(7, "Dawn", founder, 3, 0)

	require.NotNil(t, g.AddMember(newTestPlayer(2, "Bran"), 0))
	require.NotNil(t, g.AddMember(newTestPlayer(3, "Cole"), 0))

	// At capacity now.
	assert.Nil(t, g.AddMember(newTestPlayer(4, "Dara"), 0))
	assert.Equal(t, 3, g.MemberCount())

	// Duplicate join never succeeds.
	assert.Nil(t, g.AddMember(newTestPlayer(2, "Bran"), 0))

	// New members start at the lowest rank.
	assert.Equal(t, byte(RankCount-1), g.Member(2).Rank)
}

func TestTryDebitFundsNeverGoesNegative(t *testing.T) {
	g := NewGuild(7, "Dawn", newTestPlayer(1, "Aria"), 10, 0)
	g.Funds = 100

	assert.False(t, g.TryDebitFunds(101))
	assert.Equal(t, int64(100), g.Funds)

	assert.True(t, g.TryDebitFunds(100))
	assert.Equal(t, int64(0), g.Funds)

	assert.False(t, g.TryDebitFunds(1))
	assert.False(t, g.TryDebitFunds(-5))
	assert.Equal(t, int64(0), g.Funds)
}

func countLeaders(g *Guild) int {
	n := 0
	for _, m := range g.Members {
		if m.Rank == 0 {
			n++
		}
	}
	return n
}

func TestTransferLeaderKeepsExactlyOneLeader(t *testing.T) {
	founder := newTestPlayer(1, "Aria")
	target := newTestPlayer(2, "Bran")
	g := NewGuild(7, "Dawn", founder, 10, 0)
	g.AddMember(target, 0)

	require.True(t, g.TransferLeader(target))
	assert.Equal(t, int64(2), g.LeaderCharID)
	assert.Equal(t, "Bran", g.LeaderName)
	assert.Equal(t, byte(0), g.Member(2).Rank)
	assert.Equal(t, byte(1), g.Member(1).Rank)
	assert.Equal(t, 1, countLeaders(g))

	// Transferring to a non-member or to the current leader fails.
	assert.False(t, g.TransferLeader(newTestPlayer(9, "Nope")))
	assert.False(t, g.TransferLeader(target))
	assert.Equal(t, 1, countLeaders(g))
}

func TestHasRight(t *testing.T) {
	founder := newTestPlayer(1, "Aria")
	g := NewGuild(7, "Dawn", founder, 10, 0)
	member := newTestPlayer(2, "Bran")
	m := g.AddMember(member, 0)

	// Rank 0 always has every right.
	assert.True(t, g.HasRight(g.Member(1), RightService))

	// Lowest default rank has none.
	assert.False(t, g.HasRight(m, RightInvite))
	assert.False(t, g.HasRight(nil, RightInvite))

	m.Rank = 1 // Jr. Master
	assert.True(t, g.HasRight(m, RightInvite))
	assert.False(t, g.HasRight(m, RightService))
}

func TestApplicationsRemoveReturnsRecord(t *testing.T) {
	g := NewGuild(7, "Dawn", newTestPlayer(1, "Aria"), 10, 0)
	app := &GuildApplication{ID: 42, CharID: 5, GuildID: 7}
	g.AddApplication(app)

	assert.Same(t, app, g.RemoveApplication(42))
	assert.Nil(t, g.RemoveApplication(42))
}

func TestServiceCreatesLevelZeroEntry(t *testing.T) {
	g := NewGuild(7, "Dawn", newTestPlayer(1, "Aria"), 10, 0)
	s := g.Service(3)
	require.NotNil(t, s)
	assert.Equal(t, int32(0), s.Level)
	assert.Same(t, s, g.Service(3))
}

// Concurrent joins and kicks against a small guild must never exceed
// capacity or disturb the single rank-0 member.
func TestConcurrentJoinAndKick(t *testing.T) {
	founder := newTestPlayer(1, "Aria")
	g := NewGuild(7, "Dawn", founder, 5, 0)

	var wg sync.WaitGroup
	for i := int64(2); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			p := newTestPlayer(id, "P")
			g.Lock()
			g.AddMember(p, 0)
			g.Unlock()
		}(i)
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			g.Lock()
			if m := g.Member(id); m != nil && m.CharID != g.LeaderCharID {
				g.RemoveMember(id)
			}
			g.Unlock()
		}(i)
	}
	wg.Wait()

	g.Lock()
	defer g.Unlock()
	assert.LessOrEqual(t, g.MemberCount(), 5)
	assert.NotNil(t, g.Member(1))
	assert.Equal(t, 1, countLeaders(g))
}
