package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"ttsbot/backend/internal/adapter"
	"ttsbot/backend/internal/constants"
	"ttsbot/backend/internal/reporter"
	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/ttsmode"
	"ttsbot/backend/internal/voice"
	apperrors "ttsbot/backend/pkg/errors"
)

// SettingsProvider reads guild and user policy
type SettingsProvider interface {
	GuildPolicy(ctx context.Context, guildID string) (state.GuildPolicy, error)
	UserPolicy(ctx context.Context, userID string) (state.UserPolicy, error)
	// Nickname returns the per-guild spoken name override, or "" when unset
	Nickname(ctx context.Context, guildID, userID string) (string, error)
}

// Synthesizer turns text into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, req adapter.SynthesisRequest) (*adapter.Audio, error)
}

// Analytics receives usage counters
type Analytics interface {
	Increment(counter, label string)
	RecordMessage(outcome string)
	RecordSynthesis(mode string, duration time.Duration)
}

// ErrorReporter receives faults that need a human
type ErrorReporter interface {
	Report(inc reporter.Incident) string
}

// Sessions is the part of voice.Manager the dispatcher drives
type Sessions interface {
	Ensure(ctx context.Context, guildID, channelID string) (voice.Session, error)
	Session(ctx context.Context, guildID string) (voice.Session, bool, error)
	OnLeave(hook func(guildID string))
}

// Dependencies wires a Dispatcher
type Dependencies struct {
	Settings    SettingsProvider
	Synthesizer Synthesizer
	Sessions    Sessions
	Catalog     *ttsmode.Catalog
	Analytics   Analytics
	Reporter    ErrorReporter
	Logger      *zap.Logger
}

// Dispatcher carries a message from the gate through the transformer to the voice session.
// One Dispatcher serves every guild; its shared state is the speaker tracker.
type Dispatcher struct {
	settings  SettingsProvider
	synth     Synthesizer
	sessions  Sessions
	catalog   *ttsmode.Catalog
	analytics Analytics
	reporter  ErrorReporter
	regexes   *RegexSet
	tracker   *SpeakerTracker
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher and hooks speaker cleanup into session teardown
func NewDispatcher(deps Dependencies) *Dispatcher {
	d := &Dispatcher{
		settings:  deps.Settings,
		synth:     deps.Synthesizer,
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		analytics: deps.Analytics,
		reporter:  deps.Reporter,
		regexes:   NewRegexSet(),
		tracker:   NewSpeakerTracker(),
		logger:    deps.Logger,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.analytics == nil {
		d.analytics = nopAnalytics{}
	}
	d.sessions.OnLeave(d.tracker.Forget)
	return d
}

// Handle runs one message through the pipeline. Policy drops and recoverable failures
// return nil; anything else has already been reported when it is returned.
func (d *Dispatcher) Handle(ctx context.Context, msg state.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling message: %v", r)
			d.logger.Error("Recovered from panic in dispatcher",
				zap.String("guild_id", msg.GuildID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			d.report(reporter.Incident{Source: "dispatch", GuildID: msg.GuildID, UserID: msg.Author.ID, Err: err})
			d.analytics.RecordMessage(constants.OutcomeFailed)
		}
	}()

	start := time.Now()
	guild, err := d.settings.GuildPolicy(ctx, msg.GuildID)
	if err != nil {
		return d.fail(ctx, start, msg, state.VoiceSelection{}, err)
	}
	user, err := d.settings.UserPolicy(ctx, msg.Author.ID)
	if err != nil {
		return d.fail(ctx, start, msg, state.VoiceSelection{}, err)
	}

	decision := Evaluate(msg, guild, user)
	if !decision.Speak() {
		d.analytics.RecordMessage(constants.OutcomeDropped)
		return nil
	}

	selection := state.ResolveVoice(guild, user)

	nickname := ""
	if guild.XSaid {
		nickname, err = d.settings.Nickname(ctx, msg.GuildID, msg.Author.ID)
		if err != nil {
			// The member's own name is a fine fallback
			d.logger.Warn("Failed to load nickname override",
				zap.String("guild_id", msg.GuildID),
				zap.String("user_id", msg.Author.ID),
				zap.Error(err),
			)
			nickname = ""
		}
	}

	result := Transform(TransformInput{
		GuildID:          msg.GuildID,
		Text:             decision.Text,
		Kind:             msg.Kind,
		Author:           msg.Author,
		NicknameOverride: nickname,
		Attachments:      msg.Attachments,
		VoiceLanguage:    d.catalog.Language(selection.Mode, selection.Voice),
		HumanOccupants:   msg.Voice.HumanOccupants,
		XSaid:            guild.XSaid,
		SkipEmoji:        guild.SkipEmoji,
		NewFormatting:    user.UseNewFormatting,
		RepeatedChars:    guild.RepeatedChars,
	}, d.regexes, d.tracker)

	if result.Text == "" {
		d.analytics.RecordMessage(constants.OutcomeDropped)
		return nil
	}

	maxLength := guild.MaxMessageSeconds
	if maxLength <= 0 {
		maxLength = constants.DefaultMaxMessageSeconds
	}
	translation := ""
	if guild.TranslationEnabled {
		translation = guild.TranslationLang
	}

	err = d.Deliver(ctx, DeliveryRequest{
		GuildID:              msg.GuildID,
		AuthorID:             msg.Author.ID,
		AuthorVoiceChannelID: msg.Voice.ChannelID,
		BotVoiceChannelID:    msg.BotVoiceChannelID,
		AutoJoinChannelID:    decision.AutoJoinChannelID,
		Text:                 result.Text,
		Voice:                selection,
		MaxLength:            maxLength,
		TranslationLang:      translation,
	})
	if err != nil {
		return d.fail(ctx, start, msg, selection, err)
	}

	d.analytics.RecordMessage(constants.OutcomeSpoken)
	return nil
}

// fail abandons a message: recoverable errors quietly, the rest through the reporter.
// Running out of the message's own deadline is reported as a timeout whatever step hit it.
func (d *Dispatcher) fail(ctx context.Context, start time.Time, msg state.Message, selection state.VoiceSelection, err error) error {
	if apperrors.IsSoft(err) {
		d.logger.Debug("Abandoned message",
			zap.String("guild_id", msg.GuildID),
			zap.String("user_id", msg.Author.ID),
			zap.Error(err),
		)
		d.analytics.RecordMessage(constants.OutcomeSilent)
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.logger.Debug("Message ran out of time", zap.String("guild_id", msg.GuildID), zap.Error(err))
		timeout := time.Since(start)
		if deadline, ok := ctx.Deadline(); ok {
			timeout = deadline.Sub(start)
		}
		err = apperrors.NewContextTimeout("deliver message", timeout.Round(time.Millisecond))
	}

	d.report(reporter.Incident{
		Source:  "dispatch",
		GuildID: msg.GuildID,
		UserID:  msg.Author.ID,
		Voice:   selection.Voice,
		Mode:    selection.Mode.String(),
		Err:     err,
	})
	d.analytics.RecordMessage(constants.OutcomeFailed)
	return err
}

type nopAnalytics struct{}

func (nopAnalytics) Increment(string, string)              {}
func (nopAnalytics) RecordMessage(string)                  {}
func (nopAnalytics) RecordSynthesis(string, time.Duration) {}

func (d *Dispatcher) report(inc reporter.Incident) {
	if d.reporter == nil {
		d.logger.Error("Unreported incident", zap.String("guild_id", inc.GuildID), zap.Error(inc.Err))
		return
	}
	d.reporter.Report(inc)
}
