package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"ttsbot/backend/internal/state"
)

// ============================================================================
// Guild Settings Operations
// ============================================================================

// FetchGuildSettings loads a guild's policy. Guilds without a node get the defaults.
func (r *Repository) FetchGuildSettings(ctx context.Context, guildID string) (state.GuildPolicy, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (g:Guild {id: $guildID})
		RETURN g { .* } AS guild
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"guildID": guildID,
	})
	if err != nil {
		return state.GuildPolicy{}, fmt.Errorf("failed to query guild settings: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return state.GuildPolicy{}, fmt.Errorf("failed to fetch guild settings: %w", err)
		}
		return state.DefaultGuildPolicy(guildID), nil
	}

	return guildPolicyFromProps(guildID, getMapFromRecord(result.Record(), "guild")), nil
}

// guildPolicyFromProps overlays stored properties on the defaults
func guildPolicyFromProps(guildID string, props map[string]interface{}) state.GuildPolicy {
	p := state.DefaultGuildPolicy(guildID)
	if props == nil {
		return p
	}

	p.SetupChannelID = getStringFromMap(props, propSetupChannel, p.SetupChannelID)
	p.RequiredRoleID = getStringFromMap(props, propRequiredRole, p.RequiredRoleID)
	p.RequiredPrefix = getStringFromMap(props, propRequiredPrefix, p.RequiredPrefix)
	p.CommandPrefix = getStringFromMap(props, propPrefix, p.CommandPrefix)

	p.BotIgnore = getBoolFromMap(props, propBotIgnore, p.BotIgnore)
	p.RequireVoice = getBoolFromMap(props, propRequireVoice, p.RequireVoice)
	p.AudienceIgnore = getBoolFromMap(props, propAudienceIgnore, p.AudienceIgnore)
	p.AutoJoin = getBoolFromMap(props, propAutoJoin, p.AutoJoin)
	p.TextInVoice = getBoolFromMap(props, propTextInVoice, p.TextInVoice)
	p.SkipEmoji = getBoolFromMap(props, propSkipEmoji, p.SkipEmoji)
	p.XSaid = getBoolFromMap(props, propXSaid, p.XSaid)

	p.MaxMessageSeconds = getIntFromMap(props, propMsgLength, p.MaxMessageSeconds)
	p.RepeatedChars = getIntFromMap(props, propRepeatedChars, p.RepeatedChars)

	p.TranslationLang = getStringFromMap(props, propTargetLang, p.TranslationLang)
	p.TranslationEnabled = getBoolFromMap(props, propToTranslate, p.TranslationEnabled)

	if mode, ok := getModeFromMap(props, propVoiceMode); ok {
		p.VoiceMode = mode
	}
	p.DefaultVoices = parseModeVoices(getStringSliceFromMap(props, propDefaultVoices))
	p.Premium = getBoolFromMap(props, propPremium, p.Premium)

	return p
}

// SaveGuildSettings writes a guild's full policy
func (r *Repository) SaveGuildSettings(ctx context.Context, p state.GuildPolicy) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		MERGE (g:Guild {id: $guildID})
		ON CREATE SET g.created_at = datetime($now)
		SET g += $props,
		    g.updated_at = datetime($now)
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"guildID": p.GuildID,
		"now":     now,
		"props": map[string]interface{}{
			propSetupChannel:   p.SetupChannelID,
			propRequiredRole:   p.RequiredRoleID,
			propRequiredPrefix: p.RequiredPrefix,
			propPrefix:         p.CommandPrefix,
			propBotIgnore:      p.BotIgnore,
			propRequireVoice:   p.RequireVoice,
			propAudienceIgnore: p.AudienceIgnore,
			propAutoJoin:       p.AutoJoin,
			propTextInVoice:    p.TextInVoice,
			propSkipEmoji:      p.SkipEmoji,
			propXSaid:          p.XSaid,
			propMsgLength:      p.MaxMessageSeconds,
			propRepeatedChars:  p.RepeatedChars,
			propTargetLang:     p.TranslationLang,
			propToTranslate:    p.TranslationEnabled,
			propVoiceMode:      p.VoiceMode.String(),
			propDefaultVoices:  encodeModeVoices(p.DefaultVoices),
			propPremium:        p.Premium,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}

	r.logger.Info("Guild settings saved", zap.String("guild_id", p.GuildID))
	return nil
}

// SetSetupChannel points the bot at a text channel
func (r *Repository) SetSetupChannel(ctx context.Context, guildID, channelID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		MERGE (g:Guild {id: $guildID})
		ON CREATE SET g.created_at = datetime($now)
		SET g.setup_channel = $channelID,
		    g.updated_at = datetime($now)
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"guildID":   guildID,
		"channelID": channelID,
		"now":       now,
	})
	if err != nil {
		return fmt.Errorf("failed to set setup channel: %w", err)
	}

	r.logger.Info("Setup channel updated",
		zap.String("guild_id", guildID),
		zap.String("channel_id", channelID),
	)
	return nil
}

// DeleteGuild removes a guild's settings and nicknames, used when the bot leaves it
func (r *Repository) DeleteGuild(ctx context.Context, guildID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (g:Guild {id: $guildID})
		DETACH DELETE g
	`

	if _, err := session.Run(ctx, query, map[string]interface{}{"guildID": guildID}); err != nil {
		return fmt.Errorf("failed to delete guild: %w", err)
	}
	return nil
}
