package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"ttsbot/backend/internal/constants"
	"ttsbot/backend/internal/voice"
	apperrors "ttsbot/backend/pkg/errors"
)

// VoiceTransport connects to Discord voice channels through discordgo and plays
// queued tracks on them
type VoiceTransport struct {
	session   *discordgo.Session
	converter *AudioConverter
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*voiceSession
}

// NewVoiceTransport creates a transport on top of an open gateway session
func NewVoiceTransport(session *discordgo.Session, converter *AudioConverter, logger *zap.Logger) *VoiceTransport {
	return &VoiceTransport{
		session:   session,
		converter: converter,
		logger:    logger,
		sessions:  make(map[string]*voiceSession),
	}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Join implements voice.Transport. It gives up when ctx ends, leaving the half-open
// connection for Leave to clean up.
func (t *VoiceTransport) Join(ctx context.Context, guildID, channelID string) (voice.Session, error) {
	t.stopSession(guildID)

	result := make(chan joinResult, 1)
	go func() {
		// Self-deafened: the bot only speaks
		vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, true)
		result <- joinResult{vc: vc, err: err}
	}()

	var vc *discordgo.VoiceConnection
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.err != nil {
			return nil, res.err
		}
		vc = res.vc
	}

	if !connectionReady(vc) {
		return nil, fmt.Errorf("voice connection to %s not ready", channelID)
	}

	vs := newVoiceSession(guildID, channelID, vc, t.converter, t.logger)
	t.mu.Lock()
	t.sessions[guildID] = vs
	t.mu.Unlock()

	go vs.run()
	return vs, nil
}

// Leave implements voice.Transport
func (t *VoiceTransport) Leave(ctx context.Context, guildID string) error {
	t.stopSession(guildID)

	t.session.RLock()
	vc := t.session.VoiceConnections[guildID]
	t.session.RUnlock()
	if vc == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- vc.Disconnect() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Drop forgets the guild's session without talking to Discord, used once Discord has
// already disconnected the bot
func (t *VoiceTransport) Drop(guildID string) {
	t.stopSession(guildID)
}

func (t *VoiceTransport) stopSession(guildID string) {
	t.mu.Lock()
	vs, ok := t.sessions[guildID]
	delete(t.sessions, guildID)
	t.mu.Unlock()

	if ok {
		vs.close()
	}
}

func connectionReady(vc *discordgo.VoiceConnection) bool {
	if vc == nil {
		return false
	}
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

type queuedTrack struct {
	track  voice.Track
	handle *voice.PendingHandle
}

// voiceSession is one guild's connection plus its playback worker
type voiceSession struct {
	guildID   string
	channelID string
	vc        *discordgo.VoiceConnection
	converter *AudioConverter
	logger    *zap.Logger

	queue     chan queuedTrack
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newVoiceSession(guildID, channelID string, vc *discordgo.VoiceConnection, converter *AudioConverter, logger *zap.Logger) *voiceSession {
	return &voiceSession{
		guildID:   guildID,
		channelID: channelID,
		vc:        vc,
		converter: converter,
		logger:    logger.With(zap.String("guild_id", guildID)),
		queue:     make(chan queuedTrack, constants.PlaybackQueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *voiceSession) GuildID() string   { return s.guildID }
func (s *voiceSession) ChannelID() string { return s.channelID }

func (s *voiceSession) Connected() bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	return connectionReady(s.vc)
}

// Enqueue implements voice.Session. The caller's track is owned by the session from here on.
func (s *voiceSession) Enqueue(ctx context.Context, track voice.Track) (voice.TrackHandle, error) {
	handle := voice.NewPendingHandle()
	select {
	case <-s.stop:
		return nil, apperrors.ErrSessionClosed
	default:
	}

	select {
	case s.queue <- queuedTrack{track: track, handle: handle}:
		return handle, nil
	case <-s.stop:
		return nil, apperrors.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *voiceSession) close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

// run plays queued tracks one at a time until the session is closed
func (s *voiceSession) run() {
	defer close(s.done)
	defer s.drain()

	for {
		select {
		case <-s.stop:
			return
		case item := <-s.queue:
			err := s.play(item.track)
			if errors.Is(err, errPlaybackStopped) {
				item.handle.Resolve(apperrors.ErrSessionClosed)
				return
			}
			if err != nil {
				s.logger.Warn("Playback failed", zap.Error(err))
			}
			item.handle.Resolve(err)
		}
	}
}

// drain fails whatever is still queued after the worker stops
func (s *voiceSession) drain() {
	for {
		select {
		case item := <-s.queue:
			item.track.Audio.Close()
			item.handle.Resolve(apperrors.ErrSessionClosed)
		default:
			return
		}
	}
}

var errPlaybackStopped = errors.New("playback stopped")

func (s *voiceSession) play(track voice.Track) (err error) {
	defer track.Audio.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opus, err := s.converter.ToOggOpus(ctx, track.Audio, track.ContentType)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := opus.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("ffmpeg: %w", closeErr)
		}
	}()

	return s.stream(NewOggOpusReader(opus))
}

func (s *voiceSession) stream(packets *OggOpusReader) error {
	speaking := false
	defer func() {
		if speaking {
			_ = s.vc.Speaking(false)
		}
	}()

	for {
		packet, err := packets.NextPacket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if !speaking {
			if err := s.vc.Speaking(true); err != nil {
				return fmt.Errorf("set speaking: %w", err)
			}
			speaking = true
		}

		select {
		case s.vc.OpusSend <- packet:
		case <-s.stop:
			return errPlaybackStopped
		}
	}
}
