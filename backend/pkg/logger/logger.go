package logger

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger instance
var Logger *zap.Logger

// level is shared by every logger Init builds, so changing it affects the whole process
var level = zap.NewAtomicLevel()

// Options selects how the process logs
type Options struct {
	// Env "production" logs JSON; anything else logs a colored console
	Env string
	// Level overrides the environment's default ("debug", "info", "warn", "error")
	Level string
}

// Init builds the global logger
func Init(opts Options) error {
	config := configFor(opts.Env)

	if opts.Level == "" {
		level.SetLevel(config.Level.Level())
	} else if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	config.Level = level

	built, err := config.Build(zap.Fields(zap.String("service", "ttsbot")))
	if err != nil {
		return err
	}
	Logger = built
	return nil
}

func configFor(env string) zap.Config {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		// Voice and dispatch log per message; sampling would hide which guild failed
		config.Sampling = nil
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return config
}

// LevelHandler reports the level on GET and changes it on PUT ({"level":"debug"})
func LevelHandler() http.Handler {
	return level
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Get returns the global logger, or a development logger if Init was never called
func Get() *zap.Logger {
	if Logger == nil {
		fallback, _ := zap.NewDevelopment()
		return fallback
	}
	return Logger
}

// Named returns a child of the global logger scoped to a component
func Named(component string) *zap.Logger {
	return Get().Named(component)
}
