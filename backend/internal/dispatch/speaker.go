package dispatch

import (
	"sync"
	"time"

	"ttsbot/backend/internal/constants"
)

// SpeakerState is the last speaker whose name was announced in a guild
type SpeakerState struct {
	UserID string
	At     time.Time
}

// SpeakerTracker decides whether a message needs an "X said" prefix.
// Entries are guild-scoped and simply overwritten; concurrent messages in the
// same guild race last-write-wins, which only affects a redundant announcement.
type SpeakerTracker struct {
	last map[string]SpeakerState
	mu   sync.RWMutex
	now  func() time.Time
}

// NewSpeakerTracker creates an empty tracker using the wall clock
func NewSpeakerTracker() *SpeakerTracker {
	return &SpeakerTracker{
		last: make(map[string]SpeakerState),
		now:  time.Now,
	}
}

// ShouldAnnounce reports whether userID's name should be spoken in guildID.
// humanOccupants is the number of non-bot members in the author's voice channel.
func (t *SpeakerTracker) ShouldAnnounce(guildID, userID string, humanOccupants int) bool {
	t.mu.RLock()
	last, ok := t.last[guildID]
	t.mu.RUnlock()

	switch {
	case !ok:
		return true
	case last.UserID != userID:
		return true
	case t.now().Sub(last.At) > constants.AnnounceWindow:
		return true
	default:
		// Nobody else is listening, so naming the speaker costs nothing
		return humanOccupants <= 1
	}
}

// Record marks userID as just announced in guildID
func (t *SpeakerTracker) Record(guildID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[guildID] = SpeakerState{UserID: userID, At: t.now()}
}

// Forget drops the guild's entry
func (t *SpeakerTracker) Forget(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, guildID)
}

// Get returns the guild's entry
func (t *SpeakerTracker) Get(guildID string) (SpeakerState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.last[guildID]
	return s, ok
}
