package voice

import (
	"context"
	"sync"
)

// JoinToken serializes voice handshakes for a single guild.
// All dispatches for a guild share the same token; it is only held while joining.
type JoinToken struct {
	GuildID string
	sem     chan struct{}
}

func newJoinToken(guildID string) *JoinToken {
	return &JoinToken{GuildID: guildID, sem: make(chan struct{}, 1)}
}

// Lock acquires the token, giving up when ctx is done
func (t *JoinToken) Lock(ctx context.Context) error {
	select {
	case t.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the token
func (t *JoinToken) Unlock() {
	<-t.sem
}

// LockTable hands out one JoinToken per guild, created on first use
type LockTable struct {
	tokens map[string]*JoinToken
	mu     sync.Mutex
}

// NewLockTable creates an empty lock table
func NewLockTable() *LockTable {
	return &LockTable{tokens: make(map[string]*JoinToken)}
}

// Token returns the guild's join token, creating it if needed
func (l *LockTable) Token(guildID string) *JoinToken {
	l.mu.Lock()
	defer l.mu.Unlock()

	if token, exists := l.tokens[guildID]; exists {
		return token
	}
	token := newJoinToken(guildID)
	l.tokens[guildID] = token
	return token
}

// Evict forgets a guild's token. Holders of the old token keep working; new callers get a fresh one.
func (l *LockTable) Evict(guildID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tokens, guildID)
}
