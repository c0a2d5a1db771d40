package reporter

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "ttsbot/backend/pkg/errors"
)

// DefaultWindow is how long repeats of the same fault fold into one incident
const DefaultWindow = 10 * time.Minute

// maxIncidents bounds the in-memory incident list
const maxIncidents = 256

// Incident is one fault worth a human's attention
type Incident struct {
	Source  string // "dispatch", "playback", "events"
	GuildID string
	UserID  string
	Voice   string
	Mode    string
	Err     error
}

// Summary is the stored view of an incident and its repeats
type Summary struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	GuildID   string    `json:"guild_id,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Reporter logs faults once per fingerprint per window and keeps a short history
type Reporter struct {
	logger *zap.Logger
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	incidents map[string]*Summary // by fingerprint
}

// New creates a reporter. A non-positive window uses DefaultWindow.
func New(logger *zap.Logger, window time.Duration) *Reporter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Reporter{
		logger:    logger,
		window:    window,
		now:       time.Now,
		incidents: make(map[string]*Summary),
	}
}

// Report records inc and returns its incident id. Repeats inside the window reuse the
// first id and are only logged at debug level.
func (r *Reporter) Report(inc Incident) string {
	if inc.Err == nil {
		return ""
	}

	fp := fingerprint(inc)
	now := r.now()

	r.mu.Lock()
	existing, ok := r.incidents[fp]
	if ok && now.Sub(existing.LastSeen) <= r.window {
		existing.Count++
		existing.LastSeen = now
		id, count := existing.ID, existing.Count
		r.mu.Unlock()

		r.logger.Debug("Repeated incident",
			zap.String("incident_id", id),
			zap.Int("count", count),
			zap.String("guild_id", inc.GuildID),
		)
		return id
	}

	summary := &Summary{
		ID:        uuid.New().String(),
		Source:    inc.Source,
		ErrorType: apperrors.TypeOf(inc.Err),
		Message:   inc.Err.Error(),
		GuildID:   inc.GuildID,
		Mode:      inc.Mode,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	r.incidents[fp] = summary
	r.pruneLocked(now)
	r.mu.Unlock()

	r.logger.Error("Incident",
		zap.String("incident_id", summary.ID),
		zap.String("source", inc.Source),
		zap.String("error_type", summary.ErrorType),
		zap.String("guild_id", inc.GuildID),
		zap.String("user_id", inc.UserID),
		zap.String("voice", inc.Voice),
		zap.String("mode", inc.Mode),
		zap.Error(inc.Err),
	)
	return summary.ID
}

// Recent returns stored incidents, most recently seen first
func (r *Reporter) Recent() []Summary {
	r.mu.Lock()
	out := make([]Summary, 0, len(r.incidents))
	for _, s := range r.incidents {
		out = append(out, *s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// pruneLocked drops expired incidents, then the oldest ones over the cap
func (r *Reporter) pruneLocked(now time.Time) {
	for fp, s := range r.incidents {
		if now.Sub(s.LastSeen) > r.window {
			delete(r.incidents, fp)
		}
	}
	for len(r.incidents) > maxIncidents {
		var oldestFP string
		var oldest time.Time
		for fp, s := range r.incidents {
			if oldestFP == "" || s.LastSeen.Before(oldest) {
				oldestFP, oldest = fp, s.LastSeen
			}
		}
		delete(r.incidents, oldestFP)
	}
}

// fingerprint identifies "the same fault": where it came from, what kind it is and
// what it said. Guild and user are left out so one outage is one incident.
func fingerprint(inc Incident) string {
	h := sha256.New()
	h.Write([]byte(inc.Source))
	h.Write([]byte{0})
	h.Write([]byte(apperrors.TypeOf(inc.Err)))
	h.Write([]byte{0})
	h.Write([]byte(inc.Mode))
	h.Write([]byte{0})
	h.Write([]byte(inc.Err.Error()))
	return hex.EncodeToString(h.Sum(nil)[:12])
}
