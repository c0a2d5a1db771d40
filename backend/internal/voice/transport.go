package voice

import (
	"context"
	"io"
)

// Track is one piece of audio queued for playback
type Track struct {
	Audio io.ReadCloser
	// ContentType hints the container ("audio/ogg", "audio/mpeg", ...); empty lets the transport probe
	ContentType string
}

// TrackHandle is returned by Enqueue. The transport resolves it after the track
// plays or fails, off the caller's goroutine.
type TrackHandle interface {
	// OnError registers a callback run if playback of this track fails.
	// Registering after the failure already happened runs the callback immediately.
	OnError(func(error))
}

// Session is an active voice connection in one guild
type Session interface {
	GuildID() string
	ChannelID() string
	// Connected reports whether the transport still considers the session usable
	Connected() bool
	Enqueue(ctx context.Context, track Track) (TrackHandle, error)
}

// Transport opens and closes voice sessions. The wire protocol is entirely its concern.
type Transport interface {
	Join(ctx context.Context, guildID, channelID string) (Session, error)
	// Leave tears down any session in the guild, including half-open ones. It must not
	// fail when there is nothing to tear down.
	Leave(ctx context.Context, guildID string) error
}

// Dropper is implemented by transports that can forget a session Discord has already
// closed without another round-trip
type Dropper interface {
	Drop(guildID string)
}
