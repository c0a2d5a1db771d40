package discord

import (
	"regexp"

	"github.com/bwmarrin/discordgo"

	"ttsbot/backend/internal/state"
)

var channelMentionRegex = regexp.MustCompile(`<#(\d+)>`)

// BuildMessage resolves a gateway message against the state cache. sessionChannelID is
// the channel of the guild's registered voice session, used when the cache has no voice
// state for the bot.
func BuildMessage(st *discordgo.State, m *discordgo.Message, sessionChannelID string) state.Message {
	msg := state.Message{
		GuildID:           m.GuildID,
		ChannelID:         m.ChannelID,
		Content:           m.Content,
		Attachments:       convertAttachments(m.Attachments),
		Author:            buildAuthor(st, m),
		BotVoiceChannelID: botVoiceChannel(st, m.GuildID, sessionChannelID),
	}

	if isForward(m) {
		msg.Kind = state.MessageKindForward
		if snapshot := m.MessageSnapshots[0].Message; snapshot != nil {
			msg.Content = snapshot.Content
			msg.Attachments = convertAttachments(snapshot.Attachments)
		}
	}

	msg.Voice = voicePresence(st, m.GuildID, msg.Author.ID)
	msg.Mentions = resolveMentions(st, m.GuildID, msg.Content, m.Mentions, m.MentionRoles)
	return msg
}

// botVoiceChannel prefers Discord's view of the bot's voice state, which survives a
// restart that empties the session registry
func botVoiceChannel(st *discordgo.State, guildID, sessionChannelID string) string {
	if st.User == nil {
		return sessionChannelID
	}
	if vs, err := st.VoiceState(guildID, st.User.ID); err == nil && vs.ChannelID != "" {
		return vs.ChannelID
	}
	return sessionChannelID
}

func isForward(m *discordgo.Message) bool {
	return m.MessageReference != nil &&
		m.MessageReference.Type == discordgo.MessageReferenceTypeForward &&
		len(m.MessageSnapshots) > 0
}

func buildAuthor(st *discordgo.State, m *discordgo.Message) state.Author {
	author := state.Author{Webhook: m.WebhookID != ""}
	if m.Author != nil {
		author.ID = m.Author.ID
		author.Username = m.Author.Username
		author.GlobalName = m.Author.GlobalName
		author.Bot = m.Author.Bot
	}

	// MessageCreate carries a partial member without the user
	if m.Member != nil {
		author.Nick = m.Member.Nick
		author.RoleIDs = m.Member.Roles
	} else if member, err := st.Member(m.GuildID, author.ID); err == nil {
		author.Nick = member.Nick
		author.RoleIDs = member.Roles
	}

	if author.ID != "" && !author.Webhook {
		if perms, err := st.UserChannelPermissions(author.ID, m.ChannelID); err == nil {
			author.IsAdmin = perms&discordgo.PermissionAdministrator != 0
		}
	}
	return author
}

func convertAttachments(attachments []*discordgo.MessageAttachment) []state.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]state.Attachment, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, state.Attachment{Filename: a.Filename, ContentType: a.ContentType})
	}
	return out
}

// voicePresence looks up the user's voice channel and counts the humans in it
func voicePresence(st *discordgo.State, guildID, userID string) state.VoicePresence {
	vs, err := st.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return state.VoicePresence{}
	}

	presence := state.VoicePresence{
		ChannelID:      vs.ChannelID,
		Suppressed:     vs.Suppress,
		HumanOccupants: HumanOccupants(st, guildID, vs.ChannelID),
	}
	if ch, err := st.Channel(vs.ChannelID); err == nil {
		presence.Stage = ch.Type == discordgo.ChannelTypeGuildStageVoice
	}
	return presence
}

// HumanOccupants counts non-bot members connected to channelID
func HumanOccupants(st *discordgo.State, guildID, channelID string) int {
	guild, err := st.Guild(guildID)
	if err != nil {
		return 0
	}

	var candidates []*discordgo.VoiceState
	st.RLock()
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			candidates = append(candidates, vs)
		}
	}
	st.RUnlock()

	humans := 0
	for _, vs := range candidates {
		if !isBotUser(st, guildID, vs) {
			humans++
		}
	}
	return humans
}

func isBotUser(st *discordgo.State, guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if st.User != nil && vs.UserID == st.User.ID {
		return true
	}
	member, err := st.Member(guildID, vs.UserID)
	if err != nil || member.User == nil {
		return false
	}
	return member.User.Bot
}

func resolveMentions(st *discordgo.State, guildID, content string, users []*discordgo.User, roleIDs []string) state.Mentions {
	mentions := state.Mentions{
		Users:    make(map[string]string, len(users)),
		Roles:    make(map[string]string, len(roleIDs)),
		Channels: make(map[string]string),
	}

	for _, u := range users {
		name := u.GlobalName
		if name == "" {
			name = u.Username
		}
		if member, err := st.Member(guildID, u.ID); err == nil && member.Nick != "" {
			name = member.Nick
		}
		mentions.Users[u.ID] = name
	}

	for _, id := range roleIDs {
		if role, err := st.Role(guildID, id); err == nil {
			mentions.Roles[id] = role.Name
		}
	}

	for _, match := range channelMentionRegex.FindAllStringSubmatch(content, -1) {
		if ch, err := st.Channel(match[1]); err == nil {
			mentions.Channels[match[1]] = ch.Name
		}
	}
	return mentions
}
