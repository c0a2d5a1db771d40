package state

// MessageKind distinguishes regular messages from forwards
type MessageKind int

const (
	MessageKindDefault MessageKind = iota
	MessageKindForward
)

// Attachment describes one file attached to a message
type Attachment struct {
	Filename    string
	ContentType string
}

// Author is who wrote a message, resolved against the guild
type Author struct {
	ID         string
	Username   string
	GlobalName string // display name, empty when unset
	Nick       string // guild member nickname, empty when unset
	Bot        bool
	Webhook    bool
	RoleIDs    []string
	IsAdmin    bool // administrator in the message's channel
}

// VoicePresence is the author's voice state in the guild
type VoicePresence struct {
	ChannelID  string // empty when not in voice
	Stage      bool   // channel is a stage channel
	Suppressed bool   // audience member in a stage channel
	// HumanOccupants counts non-bot members in ChannelID, the author included
	HumanOccupants int
}

// Mentions resolves raw mention ids to display names
type Mentions struct {
	Users    map[string]string
	Roles    map[string]string
	Channels map[string]string
}

// Message is everything the gate and transformer need to know about one chat message.
// The Discord adapter fills it from the gateway event and the guild state cache.
type Message struct {
	GuildID     string
	ChannelID   string
	Content     string
	Kind        MessageKind
	Attachments []Attachment
	Author      Author
	Voice       VoicePresence
	Mentions    Mentions

	// BotVoiceChannelID is where Discord (or failing that, the session registry) has the bot; empty when not in voice
	BotVoiceChannelID string
}

// HasRole reports whether the author carries roleID
func (a Author) HasRole(roleID string) bool {
	for _, id := range a.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// DisplayName resolves the name to announce, given an optional per-guild override
func (a Author) DisplayName(override string) string {
	switch {
	case override != "":
		return override
	case a.Nick != "":
		return a.Nick
	case a.GlobalName != "":
		return a.GlobalName
	default:
		return a.Username
	}
}
