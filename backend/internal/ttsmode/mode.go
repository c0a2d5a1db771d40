// Package ttsmode describes the voice engines the TTS service can synthesize with.
package ttsmode

import (
	"strconv"
	"strings"
	"sync"
)

// Mode is one of the TTS service's voice engines
type Mode uint8

const (
	GTTS Mode = iota
	Polly
	ESpeak
	GCloud
)

// Default is used when neither user nor guild picked a mode
const Default = GTTS

// RateBounds describes the speaking rate a mode accepts
type RateBounds struct {
	Min     float64
	Max     float64
	Default float64
	Kind    string // unit shown to users: "%", "wpm", "x"
}

// Info is the per-mode constant data
type Info struct {
	Name         string
	DefaultVoice string
	Rate         *RateBounds // nil when the mode has no speaking rate
	Premium      bool
	AudioFormat  string // preferred_format sent to the TTS service
}

var infos = [...]Info{
	GTTS: {
		Name:         "gTTS",
		DefaultVoice: "en",
		AudioFormat:  "mp3",
	},
	Polly: {
		Name:         "Polly",
		DefaultVoice: "Brian",
		Rate:         &RateBounds{Min: 10, Max: 500, Default: 100, Kind: "%"},
		Premium:      true,
		AudioFormat:  "ogg_vorbis",
	},
	ESpeak: {
		Name:         "eSpeak",
		DefaultVoice: "en1",
		Rate:         &RateBounds{Min: 100, Max: 400, Default: 175, Kind: "wpm"},
		AudioFormat:  "wav",
	},
	GCloud: {
		Name:         "gCloud",
		DefaultVoice: "en-US A",
		Rate:         &RateBounds{Min: 0.25, Max: 4.0, Default: 1.0, Kind: "x"},
		Premium:      true,
		AudioFormat:  "opus",
	},
}

// All lists every mode in declaration order
func All() []Mode {
	return []Mode{GTTS, Polly, ESpeak, GCloud}
}

// Info returns the constant data for m
func (m Mode) Info() Info {
	if int(m) >= len(infos) {
		return infos[Default]
	}
	return infos[m]
}

// String returns the query-parameter name of the mode
func (m Mode) String() string {
	return m.Info().Name
}

// Parse maps a stored mode name to a Mode, case-insensitively
func Parse(name string) (Mode, bool) {
	for _, m := range All() {
		if strings.EqualFold(infos[m].Name, name) {
			return m, true
		}
	}
	return Default, false
}

// ClampRate returns the speaking rate to send for this mode, formatted for the query string.
// An empty string means the mode takes no rate.
func (m Mode) ClampRate(rate float64) string {
	bounds := m.Info().Rate
	if bounds == nil {
		return ""
	}
	if rate == 0 {
		rate = bounds.Default
	}
	if rate < bounds.Min {
		rate = bounds.Min
	}
	if rate > bounds.Max {
		rate = bounds.Max
	}
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

// Catalog maps voice codes to language codes, per mode.
// gTTS and eSpeak voice codes are already language codes; Polly and gCloud need the
// service's voice list.
type Catalog struct {
	mu     sync.RWMutex
	voices map[Mode]map[string]string
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{voices: make(map[Mode]map[string]string)}
}

// Set replaces the known voices for a mode
func (c *Catalog) Set(m Mode, voiceToLang map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voices[m] = voiceToLang
}

// Language returns the language code a voice speaks
func (c *Catalog) Language(m Mode, voice string) string {
	if c != nil {
		c.mu.RLock()
		lang, ok := c.voices[m][voice]
		c.mu.RUnlock()
		if ok {
			return lang
		}
	}

	switch m {
	case GCloud:
		// "en-US A" -> "en-US"
		if idx := strings.IndexByte(voice, ' '); idx > 0 {
			return voice[:idx]
		}
	case ESpeak:
		// "en1", "en-us" and friends are variants of a language code
		return strings.TrimRight(voice, "0123456789")
	}
	return voice
}
