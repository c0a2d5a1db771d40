package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"ttsbot/backend/internal/constants"
)

func newTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

func TestCollector_IncrementTTSRequests(t *testing.T) {
	c := newTestCollector()

	c.Increment(constants.CounterTTSRequests, "gTTS")
	c.Increment(constants.CounterTTSRequests, "gTTS")
	c.Increment(constants.CounterTTSRequests, "Polly")
	c.Increment("unknown", "x")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ttsRequestsTotal.WithLabelValues("gTTS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ttsRequestsTotal.WithLabelValues("Polly")))
}

func TestCollector_RecordMessage(t *testing.T) {
	c := newTestCollector()

	c.RecordMessage(constants.OutcomeSpoken)
	c.RecordMessage(constants.OutcomeDropped)
	c.RecordMessage(constants.OutcomeDropped)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues(constants.OutcomeSpoken)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues(constants.OutcomeDropped)))
}

func TestCollector_VoiceMetrics(t *testing.T) {
	c := newTestCollector()

	c.RecordJoin(nil)
	c.RecordJoin(errors.New("nope"))
	c.SetVoiceSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.voiceJoinsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.voiceJoinsTotal.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.voiceSessions))
}

func TestCollector_HistogramsCollect(t *testing.T) {
	c := newTestCollector()

	c.RecordSynthesis("gTTS", 300*time.Millisecond)
	c.RecordHTTPRequest("GET", "/health", 200, 5*time.Millisecond)
	c.RecordCacheHit("guild")
	c.RecordCacheMiss("user")

	assert.Greater(t, testutil.CollectAndCount(c.synthesisDuration), 0)
	assert.Greater(t, testutil.CollectAndCount(c.httpRequestsTotal), 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("guild")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("user")))
}
