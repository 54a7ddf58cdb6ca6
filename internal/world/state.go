package world

import (
	"strings"
	"sync"
)

// State is the player directory plus the guild registry: every connected
// character indexed by session, char id and lowercase name. Lookups return
// absent (nil) rather than erroring when unknown.
type State struct {
	mu        sync.RWMutex
	bySession map[uint64]*PlayerInfo
	byCharID  map[int64]*PlayerInfo
	byName    map[string]*PlayerInfo

	Guilds *GuildManager
}

func NewState() *State {
	return &State{
		bySession: make(map[uint64]*PlayerInfo),
		byCharID:  make(map[int64]*PlayerInfo),
		byName:    make(map[string]*PlayerInfo),
		Guilds:    NewGuildManager(),
	}
}

// Add registers a player after world entry.
func (s *State) Add(p *PlayerInfo) {
	s.mu.Lock()
	s.bySession[p.Session.ID()] = p
	s.byCharID[p.CharID] = p
	s.byName[strings.ToLower(p.Name)] = p
	s.mu.Unlock()
}

// Remove drops a player from the directory and returns it, or nil.
func (s *State) Remove(sessionID uint64) *PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.bySession[sessionID]
	if p == nil {
		return nil
	}
	delete(s.bySession, sessionID)
	delete(s.byCharID, p.CharID)
	delete(s.byName, strings.ToLower(p.Name))
	return p
}

// GetBySession returns the player bound to a session, or nil.
func (s *State) GetBySession(sessionID uint64) *PlayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bySession[sessionID]
}

// GetByCharID returns an online player by character id, or nil.
func (s *State) GetByCharID(charID int64) *PlayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byCharID[charID]
}

// GetByName returns an online player by name (case-insensitive), or nil.
func (s *State) GetByName(name string) *PlayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byName[strings.ToLower(name)]
}

// PlayerCount returns the number of players in the world.
func (s *State) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySession)
}

// AllPlayers calls fn for every connected player. The snapshot is taken
// under the read lock; fn runs outside it.
func (s *State) AllPlayers(fn func(p *PlayerInfo)) {
	s.mu.RLock()
	players := make([]*PlayerInfo, 0, len(s.bySession))
	for _, p := range s.bySession {
		players = append(players, p)
	}
	s.mu.RUnlock()
	for _, p := range players {
		fn(p)
	}
}

// BroadcastField sends a frame to every player in the same field instance,
// excluding the given session id (0 excludes nobody).
func (s *State) BroadcastField(fieldID int32, instanceID int64, data []byte, exceptSession uint64) {
	s.mu.RLock()
	targets := make([]*PlayerInfo, 0, 8)
	for _, p := range s.bySession {
		if p.FieldID == fieldID && p.InstanceID == instanceID && p.Session.ID() != exceptSession {
			targets = append(targets, p)
		}
	}
	s.mu.RUnlock()
	for _, p := range targets {
		p.Session.Send(data)
	}
}
