package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ttsbot/backend/internal/reporter"
	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/voice"
	apperrors "ttsbot/backend/pkg/errors"
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SessionLister lists the active voice sessions
type SessionLister interface {
	Snapshot() []voice.SessionInfo
}

// IncidentLister lists recently reported faults
type IncidentLister interface {
	Recent() []reporter.Summary
}

// GuildSettingsReader reads the effective guild policy
type GuildSettingsReader interface {
	GuildPolicy(ctx context.Context, guildID string) (state.GuildPolicy, error)
}

// RequestMetrics records served requests
type RequestMetrics interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// Dependencies wires the router
type Dependencies struct {
	Health    HealthChecker
	Sessions  SessionLister
	Incidents IncidentLister
	Settings  GuildSettingsReader
	Metrics   RequestMetrics
	Gatherer  prometheus.Gatherer
	// LogLevel serves GET/PUT of the process log level; nil leaves the route out
	LogLevel   http.Handler
	Logger     *zap.Logger
	Production bool
}

const healthTimeout = 3 * time.Second

// NewRouter builds the status API
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(requestMetrics(deps.Metrics))
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if deps.Health != nil {
			if err := deps.Health.Ping(ctx); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "neo4j": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API routes
	api := router.Group("/api")
	{
		if deps.LogLevel != nil {
			api.GET("/log-level", gin.WrapH(deps.LogLevel))
			api.PUT("/log-level", gin.WrapH(deps.LogLevel))
		}

		api.GET("/voice/sessions", func(c *gin.Context) {
			sessions := deps.Sessions.Snapshot()
			c.JSON(http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
		})

		api.GET("/incidents", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"incidents": deps.Incidents.Recent()})
		})

		api.GET("/guilds/:id/settings", func(c *gin.Context) {
			guildID := c.Param("id")
			policy, err := deps.Settings.GuildPolicy(c.Request.Context(), guildID)
			if err != nil {
				log.Error("Failed to fetch guild settings", zap.String("guild_id", guildID), zap.Error(err))
				status := http.StatusInternalServerError
				if apperrors.IsErrorType(err, apperrors.ErrorTypeSettings) {
					status = http.StatusBadGateway
				}
				c.JSON(status, gin.H{"error": "Failed to fetch settings", "type": apperrors.TypeOf(err)})
				return
			}
			c.JSON(http.StatusOK, policy)
		})
	}

	return router
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		// Scrapes and probes are too frequent for info
		logFn := log.Info
		if path == "/metrics" || path == "/health" {
			logFn = log.Debug
		}
		logFn("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// requestMetrics records every request under its route template, so ids in the path
// do not explode label cardinality
func requestMetrics(m RequestMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
