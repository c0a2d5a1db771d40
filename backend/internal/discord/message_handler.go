package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/voice"
	apperrors "ttsbot/backend/pkg/errors"
)

// defaultMessageTimeout bounds one message from gateway event to enqueued audio
const defaultMessageTimeout = 60 * time.Second

// MessageDispatcher speaks chat messages
type MessageDispatcher interface {
	Handle(ctx context.Context, msg state.Message) error
}

// VoiceControl is the part of voice.Manager the Discord handlers drive
type VoiceControl interface {
	Join(ctx context.Context, guildID, channelID string) (voice.Session, error)
	Leave(ctx context.Context, guildID string) error
	// Disconnected forgets a session Discord already closed
	Disconnected(ctx context.Context, guildID string) error
	ForgetGuild(ctx context.Context, guildID string) error
	Registry() *voice.Registry
}

// GuildSettings reads guild policy and drops stale cache entries
type GuildSettings interface {
	GuildPolicy(ctx context.Context, guildID string) (state.GuildPolicy, error)
	InvalidateGuild(guildID string)
}

// GuildStore persists the guild settings the handlers change
type GuildStore interface {
	SetSetupChannel(ctx context.Context, guildID, channelID string) error
	DeleteGuild(ctx context.Context, guildID string) error
}

// Handler handles Discord gateway events
type Handler struct {
	dispatcher MessageDispatcher
	voice      VoiceControl
	settings   GuildSettings
	store      GuildStore
	logger     *zap.Logger
	timeout    time.Duration
}

// NewHandler creates a new Discord event handler
func NewHandler(dispatcher MessageDispatcher, voiceControl VoiceControl, settings GuildSettings, store GuildStore, logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		voice:      voiceControl,
		settings:   settings,
		store:      store,
		logger:     logger,
		timeout:    defaultMessageTimeout,
	}
}

// Register adds every handler to the session
func (h *Handler) Register(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.HandleMessage(s, m)
	})
	s.AddHandler(func(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
		h.HandleVoiceStateUpdate(s, e)
	})
	s.AddHandler(func(s *discordgo.Session, e *discordgo.ChannelDelete) {
		h.HandleChannelDelete(s, e)
	})
	s.AddHandler(func(s *discordgo.Session, e *discordgo.GuildDelete) {
		h.HandleGuildDelete(s, e)
	})
}

// HandleMessage processes a Discord message
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore DMs and messages from the bot itself
	if m.Author == nil || m.GuildID == "" {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	botChannelID := ""
	if session, ok := h.voice.Registry().Get(m.GuildID); ok {
		botChannelID = session.ChannelID()
	}
	msg := BuildMessage(s.State, m.Message, botChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if reply, handled := h.handleCommand(ctx, msg); handled {
		if reply != "" {
			if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
				h.logger.Warn("Failed to send command reply",
					zap.String("channel_id", m.ChannelID),
					zap.Error(err),
				)
			}
		}
		return
	}

	// The dispatcher reports its own failures
	if err := h.dispatcher.Handle(ctx, msg); err != nil {
		h.logger.Debug("Message not spoken",
			zap.String("guild_id", m.GuildID),
			zap.String("message_id", m.ID),
			zap.Error(err),
		)
	}
}

// handleCommand runs the join, leave and setup commands. handled is false for
// anything else, which then goes to the dispatcher.
func (h *Handler) handleCommand(ctx context.Context, msg state.Message) (reply string, handled bool) {
	if msg.Author.Bot || msg.Author.Webhook || msg.Kind == state.MessageKindForward {
		return "", false
	}

	policy, err := h.settings.GuildPolicy(ctx, msg.GuildID)
	if err != nil || policy.CommandPrefix == "" {
		return "", false
	}

	content := strings.ToLower(strings.TrimSpace(msg.Content))
	if !strings.HasPrefix(content, policy.CommandPrefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, policy.CommandPrefix))
	if len(fields) == 0 {
		return "", false
	}

	switch fields[0] {
	case "join":
		return h.join(ctx, msg, policy), true
	case "leave":
		return h.leave(ctx, msg), true
	case "setup":
		return h.setup(ctx, msg), true
	}
	return "", false
}

func (h *Handler) join(ctx context.Context, msg state.Message, policy state.GuildPolicy) string {
	if policy.SetupChannelID == "" {
		return fmt.Sprintf("No channel is set up yet. An administrator can run `%ssetup` in the channel to read from.", policy.CommandPrefix)
	}
	if msg.ChannelID != policy.SetupChannelID {
		return fmt.Sprintf("Run this in <#%s>.", policy.SetupChannelID)
	}
	if msg.Voice.ChannelID == "" {
		return "You need to be in a voice channel."
	}
	if msg.BotVoiceChannelID == msg.Voice.ChannelID {
		return "I'm already in your voice channel."
	}

	if _, err := h.voice.Join(ctx, msg.GuildID, msg.Voice.ChannelID); err != nil {
		if errors.Is(err, apperrors.ErrJoinTimeout) {
			return "Timed out joining your voice channel, try again."
		}
		h.logger.Warn("Join command failed",
			zap.String("guild_id", msg.GuildID),
			zap.String("channel_id", msg.Voice.ChannelID),
			zap.Error(err),
		)
		return "I couldn't join your voice channel. Check that I can connect and speak there."
	}
	return fmt.Sprintf("Joined <#%s>.", msg.Voice.ChannelID)
}

func (h *Handler) leave(ctx context.Context, msg state.Message) string {
	if msg.BotVoiceChannelID == "" {
		return "I'm not in a voice channel."
	}
	if msg.Voice.ChannelID != msg.BotVoiceChannelID && !msg.Author.IsAdmin {
		return "You need to be in my voice channel to do that."
	}

	if err := h.voice.Leave(ctx, msg.GuildID); err != nil {
		h.logger.Warn("Leave command failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		return "Something went wrong leaving the voice channel."
	}
	return "Left the voice channel."
}

func (h *Handler) setup(ctx context.Context, msg state.Message) string {
	if !msg.Author.IsAdmin {
		return "Only administrators can change the setup channel."
	}

	if err := h.store.SetSetupChannel(ctx, msg.GuildID, msg.ChannelID); err != nil {
		h.logger.Error("Failed to save setup channel",
			zap.String("guild_id", msg.GuildID),
			zap.String("channel_id", msg.ChannelID),
			zap.Error(err),
		)
		return "Something went wrong saving the setup channel."
	}
	h.settings.InvalidateGuild(msg.GuildID)

	h.logger.Info("Setup channel changed",
		zap.String("guild_id", msg.GuildID),
		zap.String("channel_id", msg.ChannelID),
	)
	return fmt.Sprintf("Messages in <#%s> will now be read aloud.", msg.ChannelID)
}
