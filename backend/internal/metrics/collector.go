// Package metrics exposes the bot's Prometheus counters.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"ttsbot/backend/internal/constants"
)

// Collector records bot metrics
type Collector struct {
	// Dispatch
	messagesTotal     *prometheus.CounterVec
	ttsRequestsTotal  *prometheus.CounterVec
	synthesisDuration *prometheus.HistogramVec

	// Voice
	voiceJoinsTotal *prometheus.CounterVec
	voiceSessions   prometheus.Gauge

	// Settings cache
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the bot's metrics on reg
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.messagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages seen by the dispatcher, by outcome",
		},
		[]string{"outcome"},
	)

	c.ttsRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_requests_total",
			Help:      "Synthesized messages, by voice mode",
		},
		[]string{"mode"},
	)

	c.synthesisDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "TTS service latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	c.voiceJoinsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_joins_total",
			Help:      "Voice join attempts, by result",
		},
		[]string{"result"},
	)

	c.voiceSessions = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions",
			Help:      "Registered voice sessions",
		},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_cache_hits_total",
			Help:      "Settings cache hits",
		},
		[]string{"kind"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_cache_misses_total",
			Help:      "Settings cache misses",
		},
		[]string{"kind"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// Increment bumps a named analytics counter
func (c *Collector) Increment(counter, label string) {
	switch counter {
	case constants.CounterTTSRequests:
		c.ttsRequestsTotal.WithLabelValues(label).Inc()
	default:
		c.logger.Debug("Unknown analytics counter", zap.String("counter", counter))
	}
}

// RecordMessage counts one dispatched message
func (c *Collector) RecordMessage(outcome string) {
	c.messagesTotal.WithLabelValues(outcome).Inc()
}

// RecordSynthesis records TTS service latency
func (c *Collector) RecordSynthesis(mode string, duration time.Duration) {
	c.synthesisDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordJoin counts a voice join attempt
func (c *Collector) RecordJoin(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.voiceJoinsTotal.WithLabelValues(result).Inc()
}

// SetVoiceSessions sets the registered session gauge
func (c *Collector) SetVoiceSessions(n int) {
	c.voiceSessions.Set(float64(n))
}

// RecordCacheHit records a settings cache hit
func (c *Collector) RecordCacheHit(kind string) {
	c.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a settings cache miss
func (c *Collector) RecordCacheMiss(kind string) {
	c.cacheMisses.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records one API request
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
