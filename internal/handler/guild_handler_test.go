package handler

import (
	"sync"
	"testing"
	"time"

	"github.com/ms2go/server/internal/data"
	"github.com/ms2go/server/internal/net/packet"
	"github.com/ms2go/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recSender records outbound frames in place of a live session.
type recSender struct {
	id uint64

	mu     sync.Mutex
	frames [][]byte
}

func (s *recSender) ID() uint64     { return s.id }
func (s *recSender) IsOnline() bool { return true }

func (s *recSender) Send(data []byte) {
	s.mu.Lock()
	s.frames = append(s.frames, data)
	s.mu.Unlock()
}

func (s *recSender) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

func testGuildMeta() *data.GuildTable {
	return data.NewGuildTable(
		[]data.GuildProperty{
			{Level: 1, AccumExp: 0, Capacity: 10, DonationMax: 3, AttendExp: 100, AttendFunds: 300, AttendGuildCoin: 10, DonateGuildCoin: 25},
			{Level: 2, AccumExp: 10000, Capacity: 20, DonationMax: 3},
		},
		nil, nil, nil,
		map[string]int32{"attend": 5, "donation": 10},
		nil,
	)
}

func TestSameDay(t *testing.T) {
	base := time.Date(2026, 8, 29, 23, 50, 0, 0, time.Local)

	assert.True(t, sameDay(base.Unix(), base.Add(5*time.Minute).Unix()))

	// Crossing midnight resets attendance even though less than a day passed.
	assert.False(t, sameDay(base.Unix(), base.Add(15*time.Minute).Unix()))

	// Same clock time exactly a day apart is a different day.
	assert.False(t, sameDay(base.Unix(), base.Add(24*time.Hour).Unix()))

	// Zero timestamp (never checked in) is never today.
	assert.False(t, sameDay(0, base.Unix()))
}

// Every client mode must bind without panicking: a duplicate mode value in
// the table is a wiring error caught at startup.
func TestGuildModeTableBindsAllModes(t *testing.T) {
	deps := &Deps{Log: zap.NewNop()}
	require.NotPanics(t, func() {
		guildModeTable(deps)
	})
}

func TestCheckInRewardsOncePerCalendarDay(t *testing.T) {
	meta := testGuildMeta()
	founder := &world.PlayerInfo{CharID: 1, Name: "Aria"}
	g := world.NewGuild(7, "Dawn", founder, 10, 0)
	m := g.Member(1)
	morning := time.Date(2026, 8, 29, 9, 0, 0, 0, time.Local).Unix()

	coin, ok := applyCheckIn(g, m, meta, morning)
	require.True(t, ok)
	assert.Equal(t, int32(10), coin)
	assert.Equal(t, int64(100), g.Exp)
	assert.Equal(t, int64(300), g.Funds)
	assert.Equal(t, int32(5), m.Contribution)

	// Same calendar day: nothing moves.
	coin, ok = applyCheckIn(g, m, meta, morning+6*3600)
	assert.False(t, ok)
	assert.Zero(t, coin)
	assert.Equal(t, int64(100), g.Exp)
	assert.Equal(t, int64(300), g.Funds)
	assert.Equal(t, int32(5), m.Contribution)

	// Next day it counts again.
	_, ok = applyCheckIn(g, m, meta, morning+24*3600)
	require.True(t, ok)
	assert.Equal(t, int64(200), g.Exp)
	assert.Equal(t, int32(10), m.Contribution)
}

func TestDonateBeyondDailyCapChangesNothing(t *testing.T) {
	meta := testGuildMeta()
	donor := &world.PlayerInfo{CharID: 1, Name: "Aria"}
	donor.SetMeso(1_000_000)
	g := world.NewGuild(7, "Dawn", donor, 10, 0)
	m := g.Member(1)
	debit := func(amount int64) bool { return donor.ModifyMeso(-amount) }

	// Over the cap in one request: wallet, funds and contribution untouched.
	coin, out := applyDonation(g, m, meta, 4, debit)
	assert.Equal(t, donateCapped, out)
	assert.Zero(t, coin)
	assert.Equal(t, int64(1_000_000), donor.Meso())
	assert.Zero(t, g.Funds)
	assert.Zero(t, m.Contribution)
	assert.Zero(t, m.DailyDonationCount)

	// Filling the cap exactly works.
	coin, out = applyDonation(g, m, meta, 3, debit)
	require.Equal(t, donateOK, out)
	assert.Equal(t, int32(75), coin)
	assert.Equal(t, int64(970_000), donor.Meso())
	assert.Equal(t, int64(30_000), g.Funds)
	assert.Equal(t, int32(30), m.Contribution)
	assert.Equal(t, byte(3), m.DailyDonationCount)

	// One more unit the same day is capped again.
	_, out = applyDonation(g, m, meta, 1, debit)
	assert.Equal(t, donateCapped, out)
	assert.Equal(t, int64(30_000), g.Funds)
}

func TestDonateEmptyWalletChangesNothing(t *testing.T) {
	meta := testGuildMeta()
	donor := &world.PlayerInfo{CharID: 1, Name: "Aria"}
	g := world.NewGuild(7, "Dawn", donor, 10, 0)
	m := g.Member(1)

	_, out := applyDonation(g, m, meta, 1, func(amount int64) bool { return donor.ModifyMeso(-amount) })
	assert.Equal(t, donateNoMeso, out)
	assert.Zero(t, g.Funds)
	assert.Zero(t, m.Contribution)
	assert.Zero(t, m.DailyDonationCount)
}

func TestDisbandRejectsApplicationsBothSides(t *testing.T) {
	deps := &Deps{World: world.NewState(), Log: zap.NewNop()}

	rec := &recSender{id: 2}
	applicant := &world.PlayerInfo{CharID: 2, Name: "Bran", Session: rec}
	deps.World.Add(applicant)

	g := world.NewGuild(7, "Dawn", &world.PlayerInfo{CharID: 1, Name: "Aria"}, 10, 0)
	app := &world.GuildApplication{ID: 42, CharID: 2, GuildID: 7}
	g.AddApplication(app)
	applicant.AddApplication(app)
	deps.World.Guilds.Add(g)

	g.Lock()
	apps := rejectApplicationsLocked(g)
	g.Unlock()
	deps.World.Guilds.Remove(7)
	notifyApplicationsRejected(deps, 7, apps)

	require.Len(t, apps, 1)
	assert.Nil(t, deps.World.Guilds.GetByID(7))
	assert.Empty(t, g.Applications)
	assert.Equal(t, 0, applicant.ApplicationCount())

	frames := rec.sent()
	require.Len(t, frames, 1)
	r := packet.NewReader(frames[0])
	assert.Equal(t, packet.S_OPCODE_GUILD, r.Opcode())
	assert.Equal(t, sGuildAppResponded, r.ReadByte())
	assert.Equal(t, int64(42), r.ReadLong())
	assert.Equal(t, int64(7), r.ReadLong())
	assert.False(t, r.ReadBool())
}

func TestGuildErrorPacketShape(t *testing.T) {
	data := guildErrorPacket(guildErrNotEnoughMeso)

	r := packet.NewReader(data)
	assert.Equal(t, packet.S_OPCODE_GUILD, r.Opcode())
	assert.Equal(t, sGuildError, r.ReadByte())
	assert.Equal(t, guildErrNotEnoughMeso, r.ReadInt())
	assert.False(t, r.Truncated())
}

func TestGuildTagPacketRoundTrip(t *testing.T) {
	data := guildTagPacket(42, 7, "Dawn")

	r := packet.NewReader(data)
	assert.Equal(t, packet.S_OPCODE_GUILD_TAG, r.Opcode())
	assert.Equal(t, int64(42), r.ReadLong())
	assert.Equal(t, int64(7), r.ReadLong())
	assert.Equal(t, "Dawn", r.ReadUnicodeString())
}

func TestWriteMemberBlockRoundTrip(t *testing.T) {
	m := &world.GuildMember{
		CharID:             42,
		Name:               "Bran",
		Rank:               3,
		Contribution:       120,
		DailyDonationCount: 2,
		AttendanceUnix:     1700000000,
		Motto:              "here to help",
		JoinedUnix:         1690000000,
	}
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GUILD)
	writeMemberBlock(w, m, true)

	r := packet.NewReader(w.Bytes())
	assert.Equal(t, int64(42), r.ReadLong())
	assert.Equal(t, "Bran", r.ReadUnicodeString())
	assert.Equal(t, byte(3), r.ReadByte())
	assert.Equal(t, int32(120), r.ReadInt())
	assert.Equal(t, byte(2), r.ReadByte())
	assert.Equal(t, int64(1700000000), r.ReadLong())
	assert.Equal(t, "here to help", r.ReadUnicodeString())
	assert.Equal(t, int64(1690000000), r.ReadLong())
	assert.True(t, r.ReadBool())
	assert.False(t, r.Truncated())
}
