package state

import (
	"ttsbot/backend/internal/ttsmode"
)

// GuildPolicy is the per-guild settings snapshot a dispatch runs against.
// It is fetched fresh per message and never mutated.
type GuildPolicy struct {
	GuildID string `json:"guild_id"`

	SetupChannelID string `json:"setup_channel_id"` // text channel messages are read from
	RequiredRoleID string `json:"required_role_id,omitempty"`
	RequiredPrefix string `json:"required_prefix,omitempty"`
	CommandPrefix  string `json:"command_prefix"`

	BotIgnore      bool `json:"bot_ignore"`
	RequireVoice   bool `json:"require_voice"`
	AudienceIgnore bool `json:"audience_ignore"`
	AutoJoin       bool `json:"auto_join"`
	TextInVoice    bool `json:"text_in_voice"`
	SkipEmoji      bool `json:"skip_emoji"`
	XSaid          bool `json:"xsaid"`

	MaxMessageSeconds int `json:"msg_length"`
	RepeatedChars     int `json:"repeated_chars"` // 0 disables the collapse

	TranslationLang    string `json:"target_lang,omitempty"`
	TranslationEnabled bool   `json:"to_translate"`

	VoiceMode     ttsmode.Mode            `json:"voice_mode"`
	DefaultVoices map[ttsmode.Mode]string `json:"default_voices,omitempty"`
	Premium       bool                    `json:"premium"`
}

// DefaultGuildPolicy is what a guild without stored settings gets
func DefaultGuildPolicy(guildID string) GuildPolicy {
	return GuildPolicy{
		GuildID:           guildID,
		CommandPrefix:     "-",
		BotIgnore:         true,
		RequireVoice:      true,
		AudienceIgnore:    true,
		XSaid:             true,
		MaxMessageSeconds: 30,
		VoiceMode:         ttsmode.Default,
	}
}

// UserPolicy is the per-user settings snapshot
type UserPolicy struct {
	UserID string `json:"user_id"`

	BotBanned        bool                     `json:"bot_banned"`
	VoiceMode        *ttsmode.Mode            `json:"voice_mode,omitempty"` // nil follows the guild
	Voices           map[ttsmode.Mode]string  `json:"voices,omitempty"`
	SpeakingRates    map[ttsmode.Mode]float64 `json:"speaking_rates,omitempty"`
	UseNewFormatting bool                     `json:"use_new_formatting"`
}

// VoiceSelection is the mode/voice/rate a message is spoken with
type VoiceSelection struct {
	Mode         ttsmode.Mode
	Voice        string
	SpeakingRate string // already clamped; empty when the mode takes none
}

// ResolveVoice picks the mode, voice and rate for a message.
// User choices win over guild defaults; premium modes fall back to the default mode
// for guilds without premium.
func ResolveVoice(guild GuildPolicy, user UserPolicy) VoiceSelection {
	mode := guild.VoiceMode
	if user.VoiceMode != nil {
		mode = *user.VoiceMode
	}
	if mode.Info().Premium && !guild.Premium {
		mode = ttsmode.Default
	}

	voice := user.Voices[mode]
	if voice == "" {
		voice = guild.DefaultVoices[mode]
	}
	if voice == "" {
		voice = mode.Info().DefaultVoice
	}

	return VoiceSelection{
		Mode:         mode,
		Voice:        voice,
		SpeakingRate: mode.ClampRate(user.SpeakingRates[mode]),
	}
}
