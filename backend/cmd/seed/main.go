package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"ttsbot/backend/internal/graph"
	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/ttsmode"
	"ttsbot/backend/pkg/config"
	"ttsbot/backend/pkg/logger"
)

// seedOptions describes the guild (and optionally one user) to write
type seedOptions struct {
	GuildID      string
	SetupChannel string
	Mode         string
	Voice        string
	Premium      bool
	AutoJoin     bool
	RequireVoice bool

	UserID    string
	UserVoice string
	Nickname  string
}

func main() {
	var opts seedOptions
	flag.StringVar(&opts.GuildID, "guild", "", "Guild ID to seed (required)")
	flag.StringVar(&opts.SetupChannel, "channel", "", "Text channel messages are read from")
	flag.StringVar(&opts.Mode, "mode", ttsmode.Default.String(), "Guild voice mode")
	flag.StringVar(&opts.Voice, "voice", "", "Default voice for the guild's mode")
	flag.BoolVar(&opts.Premium, "premium", false, "Enable premium modes")
	flag.BoolVar(&opts.AutoJoin, "auto-join", false, "Join the author's channel automatically")
	flag.BoolVar(&opts.RequireVoice, "require-voice", true, "Only read authors who are in voice")
	flag.StringVar(&opts.UserID, "user", "", "User ID to seed a voice or nickname for")
	flag.StringVar(&opts.UserVoice, "user-voice", "", "Voice for the user in the guild's mode")
	flag.StringVar(&opts.Nickname, "nickname", "", "Spoken name for the user in the guild")
	flag.Parse()

	// Initialize logger
	if err := logger.Init(logger.Options{Env: "development", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting settings seeding...")

	policy, err := buildGuildPolicy(opts)
	if err != nil {
		log.Fatal("Invalid seed options", zap.Error(err))
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	repo := graph.NewRepository(driver)
	defer repo.Close()

	log.Info("Creating constraints...")
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Warn("Failed to create some constraints (may already exist)", zap.Error(err))
	}

	if err := repo.SaveGuildSettings(ctx, policy); err != nil {
		log.Fatal("Failed to save guild settings", zap.Error(err))
	}
	log.Info("Guild settings saved",
		zap.String("guild_id", policy.GuildID),
		zap.String("mode", policy.VoiceMode.String()),
	)

	if opts.UserID == "" {
		return
	}
	if opts.UserVoice != "" {
		if err := repo.SetUserVoice(ctx, opts.UserID, policy.VoiceMode, opts.UserVoice); err != nil {
			log.Fatal("Failed to save user voice", zap.Error(err))
		}
		log.Info("User voice saved", zap.String("user_id", opts.UserID), zap.String("voice", opts.UserVoice))
	}
	if opts.Nickname != "" {
		if err := repo.SetNickname(ctx, policy.GuildID, opts.UserID, opts.Nickname); err != nil {
			log.Fatal("Failed to save nickname", zap.Error(err))
		}
		log.Info("Nickname saved", zap.String("user_id", opts.UserID))
	}

	log.Info("Seeding completed successfully!")
}

// buildGuildPolicy starts from the defaults a new guild gets and applies opts
func buildGuildPolicy(opts seedOptions) (state.GuildPolicy, error) {
	if opts.GuildID == "" {
		return state.GuildPolicy{}, fmt.Errorf("-guild is required")
	}

	mode, ok := ttsmode.Parse(opts.Mode)
	if !ok {
		return state.GuildPolicy{}, fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if mode.Info().Premium && !opts.Premium {
		return state.GuildPolicy{}, fmt.Errorf("mode %s needs -premium", mode)
	}

	policy := state.DefaultGuildPolicy(opts.GuildID)
	policy.SetupChannelID = opts.SetupChannel
	policy.VoiceMode = mode
	policy.Premium = opts.Premium
	policy.AutoJoin = opts.AutoJoin
	policy.RequireVoice = opts.RequireVoice
	if opts.Voice != "" {
		policy.DefaultVoices = map[ttsmode.Mode]string{mode: opts.Voice}
	}
	return policy, nil
}
