package dispatch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ttsbot/backend/internal/adapter"
	"ttsbot/backend/internal/constants"
	"ttsbot/backend/internal/reporter"
	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/voice"
	apperrors "ttsbot/backend/pkg/errors"
)

// DeliveryRequest is a transformed message ready to be spoken
type DeliveryRequest struct {
	GuildID  string
	AuthorID string

	AuthorVoiceChannelID string
	BotVoiceChannelID    string
	// AutoJoinChannelID is set by the gate when the bot must join before speaking
	AutoJoinChannelID string

	Text            string
	Voice           state.VoiceSelection
	MaxLength       int    // seconds
	TranslationLang string // empty disables translation
}

// Deliver synthesizes req and queues it on the guild's voice session.
// Recoverable failures (join timeout, no channel, audio too long) come back as soft errors.
func (d *Dispatcher) Deliver(ctx context.Context, req DeliveryRequest) error {
	if req.AutoJoinChannelID != "" {
		if _, err := d.sessions.Ensure(ctx, req.GuildID, req.AutoJoinChannelID); err != nil {
			return err
		}
	}

	session, err := d.session(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	audio, err := d.synth.Synthesize(ctx, adapter.SynthesisRequest{
		Text:            req.Text,
		Voice:           req.Voice.Voice,
		Mode:            req.Voice.Mode,
		SpeakingRate:    req.Voice.SpeakingRate,
		MaxLength:       req.MaxLength,
		TranslationLang: req.TranslationLang,
	})
	if err != nil {
		return err
	}

	mode := req.Voice.Mode.String()
	d.analytics.RecordSynthesis(mode, time.Since(start))
	d.analytics.Increment(constants.CounterTTSRequests, mode)

	handle, err := session.Enqueue(ctx, voice.Track{Audio: audio.Body, ContentType: audio.ContentType})
	if err != nil {
		audio.Body.Close()
		return apperrors.NewPlaybackFailed(req.GuildID, err)
	}

	handle.OnError(func(playErr error) {
		// Leaving drops whatever was still queued
		if errors.Is(playErr, apperrors.ErrSessionClosed) {
			d.logger.Debug("Queued audio dropped on leave", zap.String("guild_id", req.GuildID))
			return
		}
		d.report(reporter.Incident{
			Source:  "playback",
			GuildID: req.GuildID,
			UserID:  req.AuthorID,
			Voice:   req.Voice.Voice,
			Mode:    mode,
			Err:     apperrors.NewPlaybackFailed(req.GuildID, playErr),
		})
	})

	d.logger.Debug("Queued message audio",
		zap.String("guild_id", req.GuildID),
		zap.String("user_id", req.AuthorID),
		zap.String("mode", mode),
		zap.String("voice", req.Voice.Voice),
	)
	return nil
}

// session finds the guild's session, joining the author's channel (or the bot's last one)
// when the registry has nothing
func (d *Dispatcher) session(ctx context.Context, req DeliveryRequest) (voice.Session, error) {
	session, ok, err := d.sessions.Session(ctx, req.GuildID)
	if err != nil {
		return nil, err
	}
	if ok {
		return session, nil
	}

	channelID := req.AuthorVoiceChannelID
	if channelID == "" {
		channelID = req.BotVoiceChannelID
	}
	if channelID == "" {
		return nil, apperrors.ErrNoVoiceChannel
	}

	d.logger.Info("No registered voice session, recovering",
		zap.String("guild_id", req.GuildID),
		zap.String("channel_id", channelID),
	)
	return d.sessions.Ensure(ctx, req.GuildID, channelID)
}
