package reporter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "ttsbot/backend/pkg/errors"
)

func newObservedReporter(window time.Duration) (*Reporter, *observer.ObservedLogs, *time.Time) {
	core, logs := observer.New(zap.DebugLevel)
	r := New(zap.New(core), window)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, logs, &now
}

func TestReporter_DeduplicatesWithinWindow(t *testing.T) {
	r, logs, _ := newObservedReporter(time.Minute)

	inc := Incident{Source: "dispatch", GuildID: "g1", Mode: "gTTS", Err: apperrors.NewSynthesisRequestFailed(502, errors.New("bad gateway"))}
	first := r.Report(inc)
	inc.GuildID = "g2"
	second := r.Report(inc)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, logs.FilterMessage("Incident").Len())
	assert.Equal(t, 1, logs.FilterMessage("Repeated incident").Len())

	recent := r.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].Count)
	assert.Equal(t, "synthesis", recent[0].ErrorType)
}

func TestReporter_NewIncidentAfterWindow(t *testing.T) {
	r, _, now := newObservedReporter(time.Minute)

	inc := Incident{Source: "playback", Err: errors.New("ffmpeg exited")}
	first := r.Report(inc)
	*now = now.Add(2 * time.Minute)
	second := r.Report(inc)

	assert.NotEqual(t, first, second)
	assert.Len(t, r.Recent(), 1)
}

func TestReporter_DistinctFaultsAreSeparate(t *testing.T) {
	r, logs, _ := newObservedReporter(time.Minute)

	a := r.Report(Incident{Source: "dispatch", Err: errors.New("a")})
	b := r.Report(Incident{Source: "dispatch", Err: errors.New("b")})
	c := r.Report(Incident{Source: "playback", Err: errors.New("a")})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 3, logs.FilterMessage("Incident").Len())
}

func TestReporter_NilErrorIsIgnored(t *testing.T) {
	r, logs, _ := newObservedReporter(time.Minute)
	assert.Empty(t, r.Report(Incident{Source: "dispatch"}))
	assert.Zero(t, logs.Len())
}

func TestReporter_RecentIsCapped(t *testing.T) {
	r, _, now := newObservedReporter(time.Hour)
	for i := 0; i < maxIncidents+10; i++ {
		*now = now.Add(time.Second)
		r.Report(Incident{Source: "dispatch", Err: errors.New(time.Duration(i).String())})
	}
	assert.Len(t, r.Recent(), maxIncidents)
}
