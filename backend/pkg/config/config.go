package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	apperrors "ttsbot/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j (settings store)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Discord
	DiscordBotToken string

	// TTS service
	TTSServiceURL string
	TTSServiceKey string
	TTSTimeout    time.Duration

	// LogLevel overrides the environment's default log level when set
	LogLevel string

	// Voice
	JoinTimeout time.Duration
	FFmpegPath  string

	// Settings cache
	SettingsCacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", ""),
		Neo4jURI:         getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:    getEnv("NEO4J_PASSWORD", "password"),
		DiscordBotToken:  getEnv("DISCORD_BOT_TOKEN", ""),
		TTSServiceURL:    getEnv("TTS_SERVICE_URL", "http://localhost:20310"),
		TTSServiceKey:    getEnv("TTS_SERVICE_KEY", ""),
		TTSTimeout:       getEnvDuration("TTS_TIMEOUT", 30*time.Second),
		JoinTimeout:      getEnvDuration("VOICE_JOIN_TIMEOUT", 10*time.Second),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		SettingsCacheTTL: getEnvDuration("SETTINGS_CACHE_TTL", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.TTSServiceURL == "" {
		return apperrors.NewConfigMissingRequired("TTS_SERVICE_URL")
	}
	if c.JoinTimeout <= 0 {
		return apperrors.NewConfigValidationFailed("VOICE_JOIN_TIMEOUT", "must be positive")
	}
	if c.SettingsCacheTTL < 0 {
		return apperrors.NewConfigValidationFailed("SETTINGS_CACHE_TTL", "must not be negative")
	}
	// Discord token is checked by cmd/bot so tests can load config without one
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
