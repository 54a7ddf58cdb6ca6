package world

import "sync"

// Sender is the session transport surface the world layer is allowed to
// touch: fire-and-forget ordered sends plus liveness. The concrete type is
// net.Session; tests substitute a recorder.
type Sender interface {
	ID() uint64
	Send(data []byte)
	IsOnline() bool
}

// GuildInvite is a pending guild invitation stored on the invited player.
// The invite response is validated against it — a response with no matching
// pending invite is a silent drop.
type GuildInvite struct {
	GuildID     int64
	InviterName string
}

// PlayerInfo is the in-memory record of one connected character.
// Fields below mu are mutated both by the owning session and by guild
// operations running on other sessions' goroutines. Lock order:
// guild lock → player lock, never the reverse.
type PlayerInfo struct {
	CharID    int64
	AccountID int64
	Name      string
	Level     int16

	FieldID    int32
	InstanceID int64

	Session Sender

	mu            sync.Mutex
	meso          int64
	guildID       int64
	guildName     string
	pendingInvite *GuildInvite
	applications  []*GuildApplication
}

// Meso returns the current wallet balance.
func (p *PlayerInfo) Meso() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meso
}

// ModifyMeso applies delta to the wallet. A debit that would drive the
// balance negative is rejected with no change — this is the gate every
// fee-charging operation relies on.
func (p *PlayerInfo) ModifyMeso(delta int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meso+delta < 0 {
		return false
	}
	p.meso += delta
	return true
}

// SetMeso overwrites the wallet balance (character load only).
func (p *PlayerInfo) SetMeso(v int64) {
	p.mu.Lock()
	p.meso = v
	p.mu.Unlock()
}

// GuildID returns the id of the guild the player belongs to, or 0.
func (p *PlayerInfo) GuildID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guildID
}

// GuildName returns the display name of the player's guild.
func (p *PlayerInfo) GuildName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guildName
}

// SetGuild binds or clears (id 0) the player's guild reference.
func (p *PlayerInfo) SetGuild(id int64, name string) {
	p.mu.Lock()
	p.guildID = id
	p.guildName = name
	p.mu.Unlock()
}

// SetPendingInvite records an outstanding guild invitation, replacing any
// previous one.
func (p *PlayerInfo) SetPendingInvite(inv *GuildInvite) {
	p.mu.Lock()
	p.pendingInvite = inv
	p.mu.Unlock()
}

// TakePendingInvite returns and clears the outstanding invitation for the
// given guild, or nil if none matches.
func (p *PlayerInfo) TakePendingInvite(guildID int64) *GuildInvite {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv := p.pendingInvite
	if inv == nil || inv.GuildID != guildID {
		return nil
	}
	p.pendingInvite = nil
	return inv
}

// Applications returns a copy of the player's outstanding applications.
func (p *PlayerInfo) Applications() []*GuildApplication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*GuildApplication, len(p.applications))
	copy(out, p.applications)
	return out
}

// ApplicationCount returns the number of outstanding applications.
func (p *PlayerInfo) ApplicationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.applications)
}

// AddApplication records an application on the player side.
func (p *PlayerInfo) AddApplication(app *GuildApplication) {
	p.mu.Lock()
	p.applications = append(p.applications, app)
	p.mu.Unlock()
}

// RemoveApplication removes the application with the given id from the
// player side. Returns the removed application, or nil.
func (p *PlayerInfo) RemoveApplication(appID int64) *GuildApplication {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, app := range p.applications {
		if app.ID == appID {
			p.applications = append(p.applications[:i], p.applications[i+1:]...)
			return app
		}
	}
	return nil
}

// ClearApplications removes and returns every outstanding application.
// Called when the player joins a guild: all other pending applications are
// implicitly invalidated.
func (p *PlayerInfo) ClearApplications() []*GuildApplication {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.applications
	p.applications = nil
	return out
}
