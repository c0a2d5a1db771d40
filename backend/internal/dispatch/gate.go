package dispatch

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"ttsbot/backend/internal/constants"
	"ttsbot/backend/internal/state"
)

// Action is what the gate decided to do with a message
type Action int

const (
	ActionDrop Action = iota
	ActionSpeak
)

// Decision is the gate's verdict
type Decision struct {
	Action Action
	Text   string
	// AutoJoinChannelID is set when the bot should join this channel before speaking
	AutoJoinChannelID string
}

// Speak reports whether the message should be spoken
func (d Decision) Speak() bool {
	return d.Action == ActionSpeak
}

var drop = Decision{Action: ActionDrop}

var (
	userMentionRegex    = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRegex    = regexp.MustCompile(`<@&(\d+)>`)
	channelMentionRegex = regexp.MustCompile(`<#(\d+)>`)

	massMentionReplacer = strings.NewReplacer("@everyone", "@\u200beveryone", "@here", "@\u200bhere")
)

// Evaluate decides whether msg should be spoken and whether the bot must join a channel first.
// It is pure: everything it needs is in its arguments.
func Evaluate(msg state.Message, guild state.GuildPolicy, user state.UserPolicy) Decision {
	author := msg.Author
	botInVoice := msg.BotVoiceChannelID != ""

	// Setup channel, or the author's own voice channel's text chat
	inSetupChannel := guild.SetupChannelID != "" && msg.ChannelID == guild.SetupChannelID
	inVoiceText := guild.TextInVoice && msg.Voice.ChannelID != "" && msg.ChannelID == msg.Voice.ChannelID
	if !inSetupChannel && !inVoiceText {
		return drop
	}

	if user.BotBanned {
		return drop
	}

	if guild.RequiredRoleID != "" && !author.HasRole(guild.RequiredRoleID) && !author.IsAdmin {
		return drop
	}

	if isCommand(strings.ToLower(msg.Content), guild.CommandPrefix) {
		return drop
	}

	text := SanitizeMentions(msg.Content, msg.Mentions)
	if utf8.RuneCountInString(text) >= constants.MaxSanitizedLength {
		return drop
	}

	text = strings.ToLower(text)

	if guild.RequiredPrefix != "" {
		prefix := strings.ToLower(guild.RequiredPrefix)
		if !strings.HasPrefix(text, prefix) {
			return drop
		}
		text = strings.TrimPrefix(text, prefix)
	}

	if isCommand(text, guild.CommandPrefix) {
		return drop
	}

	decision := Decision{Action: ActionSpeak, Text: strings.TrimSpace(text)}

	if author.Bot || author.Webhook {
		// Bots may talk into an existing session but never pull the bot into one
		if guild.BotIgnore || !botInVoice {
			return drop
		}
	} else if botInVoice {
		if guild.RequireVoice && msg.Voice.ChannelID != msg.BotVoiceChannelID {
			return drop
		}
	} else {
		if !guild.AutoJoin || msg.Voice.ChannelID == "" {
			return drop
		}
		decision.AutoJoinChannelID = msg.Voice.ChannelID
	}

	if guild.RequireVoice && guild.AudienceIgnore && msg.Voice.Stage && msg.Voice.Suppressed {
		return drop
	}

	return decision
}

func isCommand(lowered, commandPrefix string) bool {
	return commandPrefix != "" && strings.HasPrefix(lowered, strings.ToLower(commandPrefix))
}

// SanitizeMentions replaces raw user, role and channel mentions with readable names
func SanitizeMentions(content string, mentions state.Mentions) string {
	content = userMentionRegex.ReplaceAllStringFunc(content, func(m string) string {
		id := userMentionRegex.FindStringSubmatch(m)[1]
		return "@" + lookupOr(mentions.Users, id, "unknown user")
	})
	content = roleMentionRegex.ReplaceAllStringFunc(content, func(m string) string {
		id := roleMentionRegex.FindStringSubmatch(m)[1]
		return "@" + lookupOr(mentions.Roles, id, "unknown role")
	})
	content = channelMentionRegex.ReplaceAllStringFunc(content, func(m string) string {
		id := channelMentionRegex.FindStringSubmatch(m)[1]
		return "#" + lookupOr(mentions.Channels, id, "unknown channel")
	})
	return massMentionReplacer.Replace(content)
}

func lookupOr(names map[string]string, id, fallback string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fallback
}
