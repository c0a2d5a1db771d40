package constants

import "time"

// Dispatch constants
const (
	// MaxSanitizedLength drops messages whose mention-sanitized text reaches this many characters
	MaxSanitizedLength = 1500

	// AnnounceWindow is how long a speaker stays "recently announced" in a guild
	AnnounceWindow = 60 * time.Second

	// DefaultMaxMessageSeconds is used when a guild has no max message length configured
	DefaultMaxMessageSeconds = 30
)

// Voice constants
const (
	// DefaultJoinTimeout bounds a single voice handshake
	DefaultJoinTimeout = 10 * time.Second

	// PlaybackQueueSize is the number of tracks a session buffers before Enqueue blocks
	PlaybackQueueSize = 32
)

// Language codes
const (
	LanguageCodeEnglish = "en"
)

// Analytics counters
const (
	// CounterTTSRequests is incremented once per delivered message, labelled by mode
	CounterTTSRequests = "tts_requests"
)

// Message outcomes, as counted by the dispatcher
const (
	OutcomeSpoken  = "spoken"
	OutcomeDropped = "dropped"
	OutcomeSilent  = "silent" // abandoned on a recoverable error
	OutcomeFailed  = "failed"
)
