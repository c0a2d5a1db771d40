package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ttsbot/backend/internal/adapter"
	"ttsbot/backend/internal/discord"
	"ttsbot/backend/internal/dispatch"
	"ttsbot/backend/internal/graph"
	"ttsbot/backend/internal/httpapi"
	"ttsbot/backend/internal/metrics"
	"ttsbot/backend/internal/reporter"
	"ttsbot/backend/internal/settings"
	"ttsbot/backend/internal/ttsmode"
	"ttsbot/backend/internal/voice"
	"ttsbot/backend/pkg/config"
	"ttsbot/backend/pkg/logger"
)

const (
	metricsNamespace = "ttsbot"
	startupTimeout   = 30 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(logger.Options{Env: cfg.Env, Level: cfg.LogLevel}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting TTS bot...")

	if cfg.DiscordBotToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN is required")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("Bot stopped with error", zap.Error(err))
	}
	log.Info("Bot exited")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	// Neo4j settings store
	driver, err := graph.Connect(startCtx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return fmt.Errorf("connect neo4j: %w", err)
	}
	graphRepo := graph.NewRepository(driver)
	defer graphRepo.Close()

	if err := graphRepo.EnsureSchema(startCtx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(metricsNamespace, registry, logger.Named("metrics"))

	settingsProvider := settings.NewProvider(graphRepo, cfg.SettingsCacheTTL, collector, logger.Named("settings"))
	incidents := reporter.New(logger.Named("reporter"), reporter.DefaultWindow)

	// TTS service
	ttsClient := adapter.NewTTSClient(cfg.TTSServiceURL, cfg.TTSServiceKey, cfg.TTSTimeout)
	catalog := ttsmode.NewCatalog()
	ttsClient.LoadCatalog(startCtx, catalog)

	// Create Discord session
	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	transport := discord.NewVoiceTransport(dg, discord.NewAudioConverter(cfg.FFmpegPath), logger.Named("voice.transport"))
	voiceManager := voice.NewManager(transport, cfg.JoinTimeout, logger.Named("voice"))
	voiceManager.OnJoin(func(_ string, err error) {
		collector.RecordJoin(err)
		collector.SetVoiceSessions(voiceManager.Registry().Len())
	})
	voiceManager.OnLeave(func(string) {
		collector.SetVoiceSessions(voiceManager.Registry().Len())
	})

	dispatcher := dispatch.NewDispatcher(dispatch.Dependencies{
		Settings:    settingsProvider,
		Synthesizer: ttsClient,
		Sessions:    voiceManager,
		Catalog:     catalog,
		Analytics:   collector,
		Reporter:    incidents,
		Logger:      logger.Named("dispatch"),
	})

	handler := discord.NewHandler(dispatcher, voiceManager, settingsProvider, graphRepo, logger.Named("discord"))
	handler.Register(dg)

	log.Info("Discord bot intents configured",
		zap.Bool("guilds", (dg.Identify.Intents&discordgo.IntentsGuilds) != 0),
		zap.Bool("guild_messages", (dg.Identify.Intents&discordgo.IntentsGuildMessages) != 0),
		zap.Bool("guild_voice_states", (dg.Identify.Intents&discordgo.IntentsGuildVoiceStates) != 0),
		zap.Bool("message_content", (dg.Identify.Intents&discordgo.IntentsMessageContent) != 0),
	)

	// Open connection
	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	defer dg.Close()

	router := httpapi.NewRouter(httpapi.Dependencies{
		Health:     graphRepo,
		Sessions:   voiceManager.Registry(),
		Incidents:  incidents,
		Settings:   settingsProvider,
		Metrics:    collector,
		Gatherer:   registry,
		LogLevel:   logger.LevelHandler(),
		Logger:     logger.Named("http"),
		Production: cfg.IsProduction(),
	})
	server := httpapi.NewServer(":"+cfg.Port, router, logger.Named("http"))

	log.Info("Discord bot is running. Press CTRL-C to exit.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return leaveAll(voiceManager, log)
	})

	err = g.Wait()
	log.Info("Shutting down Discord bot...")
	return err
}

// leaveAll disconnects every voice session before the gateway closes
func leaveAll(m *voice.Manager, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, s := range m.Registry().Snapshot() {
		if err := m.Leave(ctx, s.GuildID); err != nil {
			log.Warn("Failed to leave voice channel on shutdown", zap.String("guild_id", s.GuildID), zap.Error(err))
		}
	}
	return nil
}
