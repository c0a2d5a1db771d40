package voice

import (
	"sort"
	"sync"
)

// Registry maps guilds to their active voice session
type Registry struct {
	sessions map[string]Session
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Get returns the guild's session, if any
func (r *Registry) Get(guildID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Put registers a session for its guild, replacing any previous one
func (r *Registry) Put(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.GuildID()] = s
}

// Remove drops the guild's entry and returns what was there
func (r *Registry) Remove(guildID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	delete(r.sessions, guildID)
	return s, ok
}

// Len returns the number of active sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionInfo is a read-only view of a registered session
type SessionInfo struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Connected bool   `json:"connected"`
}

// Snapshot lists registered sessions ordered by guild id
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, SessionInfo{GuildID: s.GuildID(), ChannelID: s.ChannelID(), Connected: s.Connected()})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].GuildID < infos[j].GuildID })
	return infos
}
