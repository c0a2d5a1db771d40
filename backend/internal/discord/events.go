package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const eventTimeout = 15 * time.Second

// HandleVoiceStateUpdate leaves when the bot is disconnected by someone else or the
// last human leaves its channel
func (h *Handler) HandleVoiceStateUpdate(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if e.VoiceState == nil || e.GuildID == "" {
		return
	}
	session, ok := h.voice.Registry().Get(e.GuildID)
	if !ok {
		return
	}
	botChannelID := session.ChannelID()

	if s.State.User != nil && e.UserID == s.State.User.ID {
		if e.ChannelID == "" {
			h.forgetSession(e.GuildID)
		}
		return
	}

	left := e.BeforeUpdate != nil && e.BeforeUpdate.ChannelID == botChannelID && e.ChannelID != botChannelID
	if left && HumanOccupants(s.State, e.GuildID, botChannelID) == 0 {
		h.leaveGuild(e.GuildID, "voice channel empty")
	}
}

// HandleChannelDelete leaves when the bot's voice channel is deleted
func (h *Handler) HandleChannelDelete(s *discordgo.Session, e *discordgo.ChannelDelete) {
	if e.Channel == nil {
		return
	}
	if session, ok := h.voice.Registry().Get(e.GuildID); ok && session.ChannelID() == e.ID {
		h.leaveGuild(e.GuildID, "voice channel deleted")
	}
}

// HandleGuildDelete forgets everything about a guild the bot was removed from.
// Outages also arrive as GuildDelete and are ignored.
func (h *Handler) HandleGuildDelete(s *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil || e.Unavailable {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := h.voice.ForgetGuild(ctx, e.ID); err != nil {
		h.logger.Warn("Failed to leave removed guild", zap.String("guild_id", e.ID), zap.Error(err))
	}
	h.settings.InvalidateGuild(e.ID)
	if err := h.store.DeleteGuild(ctx, e.ID); err != nil {
		h.logger.Error("Failed to delete guild settings", zap.String("guild_id", e.ID), zap.Error(err))
		return
	}
	h.logger.Info("Removed from guild", zap.String("guild_id", e.ID))
}

// forgetSession drops the session of a bot someone else disconnected
func (h *Handler) forgetSession(guildID string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := h.voice.Disconnected(ctx, guildID); err != nil {
		h.logger.Warn("Failed to drop voice session", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	h.logger.Info("Disconnected from voice", zap.String("guild_id", guildID))
}

func (h *Handler) leaveGuild(guildID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := h.voice.Leave(ctx, guildID); err != nil {
		h.logger.Warn("Failed to leave voice channel",
			zap.String("guild_id", guildID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	h.logger.Info("Left voice channel", zap.String("guild_id", guildID), zap.String("reason", reason))
}
