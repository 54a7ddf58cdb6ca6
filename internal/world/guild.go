package world

import "sync"

// Rights bitmask attached to a guild rank.
const (
	RightInvite  int32 = 0x1 // invite, kick, respond to applications
	RightNotice  int32 = 0x2 // edit the guild notice
	RightMail    int32 = 0x4 // send guild mail
	RightService int32 = 0x8 // buy/upgrade guild services
)

// LeaderRights is the full capability set. Rank 0 always carries it.
const LeaderRights = RightInvite | RightNotice | RightMail | RightService

// RankCount is the fixed number of rank slots per guild. Index 0 is the
// leader rank.
const RankCount = 6

// GuildRank is one named rank slot with its rights bitmask.
type GuildRank struct {
	Name   string
	Rights int32
}

// DefaultRanks returns the rank table a freshly created guild starts with.
func DefaultRanks() [RankCount]GuildRank {
	return [RankCount]GuildRank{
		{Name: "Master", Rights: LeaderRights},
		{Name: "Jr. Master", Rights: RightInvite | RightNotice | RightMail},
		{Name: "Member 1", Rights: RightMail},
		{Name: "Member 2", Rights: RightMail},
		{Name: "New Member 1", Rights: 0},
		{Name: "New Member 2", Rights: 0},
	}
}

// GuildMember is one membership edge. The player it refers to is owned by
// the session subsystem and is reached by char id through the directory,
// never by retained pointer.
type GuildMember struct {
	CharID             int64
	Name               string
	Rank               byte // index into the owning guild's rank table
	Contribution       int32
	DailyDonationCount byte
	AttendanceUnix     int64 // last successful check-in, compared by calendar day
	Motto              string
	JoinedUnix         int64
}

// GuildApplication lives on both the applicant's player record and the
// guild's pending list; every mutation removes it from both sides.
type GuildApplication struct {
	ID          int64
	CharID      int64
	GuildID     int64
	CreatedUnix int64
}

// GuildBuff is an unlocked guild skill at its current level.
type GuildBuff struct {
	ID    int32
	Level int32
}

// GuildService is a purchased house service at its current level.
type GuildService struct {
	ID    int32
	Level int32
}

// Guild is the aggregate: every mutation in the operation table runs under
// the embedded mutex, serialized per guild. Sessions from different guilds
// never contend. Lock order: GuildManager → Guild → PlayerInfo.
type Guild struct {
	sync.Mutex

	ID              int64
	Name            string
	LeaderCharID    int64
	LeaderAccountID int64
	LeaderName      string

	Exp         int64
	Funds       int64
	Capacity    int
	HouseRank   int32
	HouseTheme  int32
	Searchable  bool
	Notice      string
	CreatedUnix int64

	Members      map[int64]*GuildMember
	Ranks        [RankCount]GuildRank
	Applications map[int64]*GuildApplication
	Buffs        map[int32]*GuildBuff
	Services     map[int32]*GuildService
}

// NewGuild builds an aggregate with the founder as sole member at rank 0.
func NewGuild(id int64, name string, founder *PlayerInfo, capacity int, createdUnix int64) *Guild {
	g := &Guild{
		ID:              id,
		Name:            name,
		LeaderCharID:    founder.CharID,
		LeaderAccountID: founder.AccountID,
		LeaderName:      founder.Name,
		Capacity:        capacity,
		Ranks:           DefaultRanks(),
		CreatedUnix:     createdUnix,
		Members:         make(map[int64]*GuildMember),
		Applications:    make(map[int64]*GuildApplication),
		Buffs:           make(map[int32]*GuildBuff),
		Services:        make(map[int32]*GuildService),
	}
	g.Members[founder.CharID] = &GuildMember{
		CharID:     founder.CharID,
		Name:       founder.Name,
		Rank:       0,
		JoinedUnix: createdUnix,
	}
	return g
}

// Member returns the membership edge for a character, or nil.
// Caller holds the guild lock.
func (g *Guild) Member(charID int64) *GuildMember {
	return g.Members[charID]
}

// MemberCount returns the number of members. Caller holds the guild lock.
func (g *Guild) MemberCount() int {
	return len(g.Members)
}

// AtCapacity reports whether another member would exceed capacity.
// Caller holds the guild lock.
func (g *Guild) AtCapacity() bool {
	return len(g.Members) >= g.Capacity
}

// AddMember appends a member at the lowest rank. Returns nil if the guild
// is at capacity or the character already belongs — membership never
// silently exceeds the cap. Caller holds the guild lock.
func (g *Guild) AddMember(p *PlayerInfo, joinedUnix int64) *GuildMember {
	if g.AtCapacity() {
		return nil
	}
	if _, dup := g.Members[p.CharID]; dup {
		return nil
	}
	m := &GuildMember{
		CharID:     p.CharID,
		Name:       p.Name,
		Rank:       RankCount - 1,
		JoinedUnix: joinedUnix,
	}
	g.Members[p.CharID] = m
	return m
}

// RemoveMember deletes the membership edge. Caller holds the guild lock.
func (g *Guild) RemoveMember(charID int64) {
	delete(g.Members, charID)
}

// HasRight reports whether the member's rank carries the given right.
// Rank 0 always does. Caller holds the guild lock.
func (g *Guild) HasRight(m *GuildMember, right int32) bool {
	if m == nil || int(m.Rank) >= RankCount {
		return false
	}
	if m.Rank == 0 {
		return true
	}
	return g.Ranks[m.Rank].Rights&right != 0
}

// TryDebitFunds is the all-or-nothing gate for every funds-spending
// operation: if the debit would drive funds negative nothing changes and
// the caller must not proceed. Caller holds the guild lock.
func (g *Guild) TryDebitFunds(amount int64) bool {
	if amount < 0 || g.Funds < amount {
		return false
	}
	g.Funds -= amount
	return true
}

// AddFunds credits the guild treasury. Caller holds the guild lock.
func (g *Guild) AddFunds(amount int64) {
	if amount > 0 {
		g.Funds += amount
	}
}

// AddExp adds guild experience. Caller holds the guild lock; the caller is
// responsible for refreshing Capacity from metadata if the level changed.
func (g *Guild) AddExp(amount int64) {
	if amount > 0 {
		g.Exp += amount
	}
}

// TransferLeader swaps rank 0 to the target and demotes the old leader to
// rank 1, updating the stored leader fields in the same step so the
// one-leader invariant never becomes observable mid-flight.
// Caller holds the guild lock.
func (g *Guild) TransferLeader(target *PlayerInfo) bool {
	newLeader := g.Members[target.CharID]
	oldLeader := g.Members[g.LeaderCharID]
	if newLeader == nil || oldLeader == nil || newLeader == oldLeader {
		return false
	}
	newLeader.Rank = 0
	oldLeader.Rank = 1
	g.LeaderCharID = target.CharID
	g.LeaderAccountID = target.AccountID
	g.LeaderName = target.Name
	return true
}

// AddApplication stores the application on the guild side.
// Caller holds the guild lock.
func (g *Guild) AddApplication(app *GuildApplication) {
	g.Applications[app.ID] = app
}

// RemoveApplication removes and returns the application, or nil.
// Caller holds the guild lock.
func (g *Guild) RemoveApplication(appID int64) *GuildApplication {
	app := g.Applications[appID]
	if app != nil {
		delete(g.Applications, appID)
	}
	return app
}

// Buff returns the guild buff with the given id, or nil.
// Caller holds the guild lock.
func (g *Guild) Buff(id int32) *GuildBuff {
	return g.Buffs[id]
}

// Service returns the service with the given id, creating a level-0 entry
// on first purchase. Caller holds the guild lock.
func (g *Guild) Service(id int32) *GuildService {
	s := g.Services[id]
	if s == nil {
		s = &GuildService{ID: id}
		g.Services[id] = s
	}
	return s
}
