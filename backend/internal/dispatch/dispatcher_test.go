package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ttsbot/backend/internal/adapter"
	"ttsbot/backend/internal/constants"
	"ttsbot/backend/internal/reporter"
	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/ttsmode"
	"ttsbot/backend/internal/voice"
	apperrors "ttsbot/backend/pkg/errors"
)

// Fakes

type fakeSettings struct {
	guild    state.GuildPolicy
	user     state.UserPolicy
	nickname string
	err      error
}

func (f *fakeSettings) GuildPolicy(ctx context.Context, guildID string) (state.GuildPolicy, error) {
	return f.guild, f.err
}

func (f *fakeSettings) UserPolicy(ctx context.Context, userID string) (state.UserPolicy, error) {
	return f.user, nil
}

func (f *fakeSettings) Nickname(ctx context.Context, guildID, userID string) (string, error) {
	return f.nickname, nil
}

type fakeSynth struct {
	mu       sync.Mutex
	requests []adapter.SynthesisRequest
	err      error
	panics   bool
	block    bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, req adapter.SynthesisRequest) (*adapter.Audio, error) {
	if f.panics {
		panic("synth exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("synthesize: %w", ctx.Err())
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &adapter.Audio{Body: io.NopCloser(strings.NewReader("audio")), ContentType: "audio/ogg"}, nil
}

type recordingSession struct {
	guildID   string
	channelID string

	mu         sync.Mutex
	tracks     []voice.Track
	handles    []*voice.PendingHandle
	enqueueErr error
}

func (s *recordingSession) GuildID() string   { return s.guildID }
func (s *recordingSession) ChannelID() string { return s.channelID }
func (s *recordingSession) Connected() bool   { return true }

func (s *recordingSession) Enqueue(ctx context.Context, track voice.Track) (voice.TrackHandle, error) {
	if s.enqueueErr != nil {
		return nil, s.enqueueErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := voice.NewPendingHandle()
	s.tracks = append(s.tracks, track)
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *recordingSession) trackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

type fakeTransport struct {
	joins atomic.Int32
	delay time.Duration
	block bool

	mu       sync.Mutex
	sessions map[string]*recordingSession
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sessions: make(map[string]*recordingSession)}
}

func (f *fakeTransport) Join(ctx context.Context, guildID, channelID string) (voice.Session, error) {
	f.joins.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	s := &recordingSession{guildID: guildID, channelID: channelID}
	f.mu.Lock()
	f.sessions[guildID] = s
	f.mu.Unlock()
	return s, nil
}

func (f *fakeTransport) Leave(ctx context.Context, guildID string) error {
	f.mu.Lock()
	delete(f.sessions, guildID)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) session(guildID string) *recordingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[guildID]
}

type fakeAnalytics struct {
	mu       sync.Mutex
	counters map[string]int
	outcomes map[string]int
}

func newFakeAnalytics() *fakeAnalytics {
	return &fakeAnalytics{counters: make(map[string]int), outcomes: make(map[string]int)}
}

func (f *fakeAnalytics) Increment(counter, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[counter+"/"+label]++
}

func (f *fakeAnalytics) RecordMessage(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[outcome]++
}

func (f *fakeAnalytics) RecordSynthesis(string, time.Duration) {}

func (f *fakeAnalytics) outcome(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes[name]
}

type fakeReporter struct {
	mu        sync.Mutex
	incidents []reporter.Incident
}

func (f *fakeReporter) Report(inc reporter.Incident) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents = append(f.incidents, inc)
	return "incident"
}

func (f *fakeReporter) all() []reporter.Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reporter.Incident(nil), f.incidents...)
}

type harness struct {
	dispatcher *Dispatcher
	manager    *voice.Manager
	transport  *fakeTransport
	settings   *fakeSettings
	synth      *fakeSynth
	analytics  *fakeAnalytics
	reporter   *fakeReporter
}

func newHarness(t *testing.T, joinTimeout time.Duration) *harness {
	t.Helper()

	guild := state.DefaultGuildPolicy("g1")
	guild.SetupChannelID = "text"

	h := &harness{
		transport: newFakeTransport(),
		settings:  &fakeSettings{guild: guild},
		synth:     &fakeSynth{},
		analytics: newFakeAnalytics(),
		reporter:  &fakeReporter{},
	}
	h.manager = voice.NewManager(h.transport, joinTimeout, zap.NewNop())
	h.dispatcher = NewDispatcher(Dependencies{
		Settings:    h.settings,
		Synthesizer: h.synth,
		Sessions:    h.manager,
		Catalog:     ttsmode.NewCatalog(),
		Analytics:   h.analytics,
		Reporter:    h.reporter,
		Logger:      zap.NewNop(),
	})
	return h
}

func (h *harness) connect(t *testing.T) *recordingSession {
	t.Helper()
	_, err := h.manager.Join(context.Background(), "g1", "vc")
	require.NoError(t, err)
	return h.transport.session("g1")
}

func message(content string) state.Message {
	return state.Message{
		GuildID:           "g1",
		ChannelID:         "text",
		Content:           content,
		Author:            state.Author{ID: "u1", Username: "alice"},
		Voice:             state.VoicePresence{ChannelID: "vc", HumanOccupants: 2},
		BotVoiceChannelID: "vc",
	}
}

// Tests

func TestDispatcher_SpeaksMessage(t *testing.T) {
	h := newHarness(t, time.Second)
	session := h.connect(t)

	require.NoError(t, h.dispatcher.Handle(context.Background(), message("Hello World")))

	require.Equal(t, 1, session.trackCount())
	assert.Equal(t, "audio/ogg", session.tracks[0].ContentType)

	require.Len(t, h.synth.requests, 1)
	req := h.synth.requests[0]
	assert.Equal(t, "alice said hello world", req.Text)
	assert.Equal(t, ttsmode.GTTS, req.Mode)
	assert.Equal(t, "en", req.Voice)
	assert.Equal(t, 30, req.MaxLength)
	assert.Empty(t, req.TranslationLang)

	assert.Equal(t, 1, h.analytics.counters[constants.CounterTTSRequests+"/gTTS"])
	assert.Equal(t, 1, h.analytics.outcome(constants.OutcomeSpoken))
	assert.Empty(t, h.reporter.all())
}

func TestDispatcher_DroppedMessageNeverSynthesizes(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)

	require.NoError(t, h.dispatcher.Handle(context.Background(), message("-skip")))

	assert.Empty(t, h.synth.requests)
	assert.Equal(t, 1, h.analytics.outcome(constants.OutcomeDropped))
}

func TestDispatcher_TranslationAndNickname(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)
	h.settings.guild.TranslationEnabled = true
	h.settings.guild.TranslationLang = "de"
	h.settings.guild.MaxMessageSeconds = 12
	h.settings.nickname = "Ally"

	require.NoError(t, h.dispatcher.Handle(context.Background(), message("hi")))

	require.Len(t, h.synth.requests, 1)
	assert.Equal(t, "Ally said hi", h.synth.requests[0].Text)
	assert.Equal(t, "de", h.synth.requests[0].TranslationLang)
	assert.Equal(t, 12, h.synth.requests[0].MaxLength)
}

func TestDispatcher_AutoJoinTimeoutIsSilent(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	h.transport.block = true
	h.settings.guild.AutoJoin = true

	msg := message("hello")
	msg.BotVoiceChannelID = ""

	require.NoError(t, h.dispatcher.Handle(context.Background(), msg))

	assert.Empty(t, h.synth.requests)
	assert.Empty(t, h.reporter.all())
	assert.Equal(t, 1, h.analytics.outcome(constants.OutcomeSilent))
	_, ok := h.manager.Registry().Get("g1")
	assert.False(t, ok)
}

func TestDispatcher_AudioTooLongIsSilent(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)
	h.synth.err = apperrors.ErrAudioTooLong

	require.NoError(t, h.dispatcher.Handle(context.Background(), message("a very long message")))
	assert.Empty(t, h.reporter.all())
	assert.Equal(t, 1, h.analytics.outcome(constants.OutcomeSilent))
}

func TestDispatcher_SynthesisFaultIsReported(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)
	h.synth.err = apperrors.NewSynthesisRequestFailed(500, errors.New("boom"))

	err := h.dispatcher.Handle(context.Background(), message("hello"))
	require.Error(t, err)

	incidents := h.reporter.all()
	require.Len(t, incidents, 1)
	assert.Equal(t, "dispatch", incidents[0].Source)
	assert.Equal(t, "g1", incidents[0].GuildID)
	assert.Equal(t, "u1", incidents[0].UserID)
	assert.Equal(t, "gTTS", incidents[0].Mode)
	assert.Equal(t, 1, h.analytics.outcome(constants.OutcomeFailed))
	assert.Zero(t, h.analytics.counters[constants.CounterTTSRequests+"/gTTS"])
}

func TestDispatcher_MessageDeadlineIsReportedAsTimeout(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)
	h.synth.block = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.Error(t, h.dispatcher.Handle(ctx, message("hello")))

	incidents := h.reporter.all()
	require.Len(t, incidents, 1)
	assert.True(t, apperrors.IsErrorType(incidents[0].Err, apperrors.ErrorTypeContext))
	assert.ErrorIs(t, incidents[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 1, h.analytics.outcome(constants.OutcomeFailed))
}

func TestDispatcher_SettingsFaultIsReported(t *testing.T) {
	h := newHarness(t, time.Second)
	h.settings.err = apperrors.NewSettingsQueryFailed("guild:g1", errors.New("neo4j down"))

	require.Error(t, h.dispatcher.Handle(context.Background(), message("hello")))
	require.Len(t, h.reporter.all(), 1)
}

func TestDispatcher_PlaybackFailureIsCorrelated(t *testing.T) {
	h := newHarness(t, time.Second)
	session := h.connect(t)

	require.NoError(t, h.dispatcher.Handle(context.Background(), message("hello")))
	require.Len(t, session.handles, 1)

	session.handles[0].Resolve(errors.New("opus encoder died"))

	incidents := h.reporter.all()
	require.Len(t, incidents, 1)
	inc := incidents[0]
	assert.Equal(t, "playback", inc.Source)
	assert.Equal(t, "g1", inc.GuildID)
	assert.Equal(t, "u1", inc.UserID)
	assert.Equal(t, "en", inc.Voice)
	assert.Equal(t, "gTTS", inc.Mode)
	assert.True(t, apperrors.IsErrorType(inc.Err, apperrors.ErrorTypePlayback))
}

func TestDispatcher_AudioDroppedOnLeaveIsNotReported(t *testing.T) {
	h := newHarness(t, time.Second)
	session := h.connect(t)

	require.NoError(t, h.dispatcher.Handle(context.Background(), message("hello")))
	require.Len(t, session.handles, 1)

	session.handles[0].Resolve(apperrors.ErrSessionClosed)
	assert.Empty(t, h.reporter.all())
}

func TestDispatcher_EnqueueFailureIsReported(t *testing.T) {
	h := newHarness(t, time.Second)
	session := h.connect(t)
	session.enqueueErr = errors.New("queue closed")

	require.Error(t, h.dispatcher.Handle(context.Background(), message("hello")))
	// Usage is metered once audio was fetched, whatever happens after
	assert.Equal(t, 1, h.analytics.counters[constants.CounterTTSRequests+"/gTTS"])
}

func TestDispatcher_PanicIsRecovered(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)
	h.synth.panics = true

	err := h.dispatcher.Handle(context.Background(), message("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Len(t, h.reporter.all(), 1)
}

func TestDeliver_RecoversMissingSession(t *testing.T) {
	h := newHarness(t, time.Second)

	err := h.dispatcher.Deliver(context.Background(), DeliveryRequest{
		GuildID:              "g1",
		AuthorID:             "u1",
		AuthorVoiceChannelID: "vc2",
		BotVoiceChannelID:    "vc",
		Text:                 "hello",
		Voice:                state.VoiceSelection{Mode: ttsmode.GTTS, Voice: "en"},
		MaxLength:            30,
	})
	require.NoError(t, err)

	s, ok := h.manager.Registry().Get("g1")
	require.True(t, ok)
	assert.Equal(t, "vc2", s.ChannelID())
	assert.Equal(t, int32(1), h.transport.joins.Load())
}

func TestDispatcher_RecoversSessionAfterRestart(t *testing.T) {
	h := newHarness(t, time.Second)
	require.False(t, h.settings.guild.AutoJoin)

	// Discord still reports the bot in "vc" but nothing is registered
	require.NoError(t, h.dispatcher.Handle(context.Background(), message("back again")))

	s, ok := h.manager.Registry().Get("g1")
	require.True(t, ok)
	assert.Equal(t, "vc", s.ChannelID())
	assert.Equal(t, int32(1), h.transport.joins.Load())
	assert.Equal(t, 1, h.transport.session("g1").trackCount())
	assert.Equal(t, 1, h.analytics.outcome(constants.OutcomeSpoken))
}

func TestDeliver_NoChannelToRecoverInto(t *testing.T) {
	h := newHarness(t, time.Second)

	err := h.dispatcher.Deliver(context.Background(), DeliveryRequest{GuildID: "g1", Text: "hello"})
	assert.ErrorIs(t, err, apperrors.ErrNoVoiceChannel)
	assert.True(t, apperrors.IsSoft(err))
	assert.Zero(t, h.transport.joins.Load())
}

func TestDispatcher_ConcurrentAutoJoinJoinsOnce(t *testing.T) {
	h := newHarness(t, time.Second)
	h.transport.delay = 30 * time.Millisecond
	h.settings.guild.AutoJoin = true

	msg := message("hello")
	msg.BotVoiceChannelID = ""

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.dispatcher.Handle(context.Background(), msg)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), h.transport.joins.Load())
	assert.Equal(t, 2, h.transport.session("g1").trackCount())
}

func TestDispatcher_LeaveForgetsSpeaker(t *testing.T) {
	h := newHarness(t, time.Second)
	h.connect(t)

	require.NoError(t, h.dispatcher.Handle(context.Background(), message("hello")))
	_, ok := h.dispatcher.tracker.Get("g1")
	require.True(t, ok)

	require.NoError(t, h.manager.Leave(context.Background(), "g1"))
	_, ok = h.dispatcher.tracker.Get("g1")
	assert.False(t, ok)
}
