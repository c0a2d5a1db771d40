package discord

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/voice"
	apperrors "ttsbot/backend/pkg/errors"
)

type stubSession struct {
	guildID, channelID string
}

func (s *stubSession) GuildID() string   { return s.guildID }
func (s *stubSession) ChannelID() string { return s.channelID }
func (s *stubSession) Connected() bool   { return true }
func (s *stubSession) Enqueue(context.Context, voice.Track) (voice.TrackHandle, error) {
	return voice.NewPendingHandle(), nil
}

type fakeVoice struct {
	mu       sync.Mutex
	registry *voice.Registry
	joinErr  error
	joined   []string
	left     []string
	dropped  []string
	forgot   []string
}

func newFakeVoice() *fakeVoice { return &fakeVoice{registry: voice.NewRegistry()} }

func (f *fakeVoice) Join(ctx context.Context, guildID, channelID string) (voice.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	f.joined = append(f.joined, channelID)
	s := &stubSession{guildID: guildID, channelID: channelID}
	f.registry.Put(s)
	return s, nil
}

func (f *fakeVoice) Leave(ctx context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, guildID)
	f.registry.Remove(guildID)
	return nil
}

func (f *fakeVoice) Disconnected(ctx context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, guildID)
	f.registry.Remove(guildID)
	return nil
}

func (f *fakeVoice) ForgetGuild(ctx context.Context, guildID string) error {
	f.mu.Lock()
	f.forgot = append(f.forgot, guildID)
	f.mu.Unlock()
	return f.Leave(ctx, guildID)
}

func (f *fakeVoice) Registry() *voice.Registry { return f.registry }

type fakeGuildSettings struct {
	policy      state.GuildPolicy
	err         error
	invalidated []string
}

func (f *fakeGuildSettings) GuildPolicy(ctx context.Context, guildID string) (state.GuildPolicy, error) {
	return f.policy, f.err
}

func (f *fakeGuildSettings) InvalidateGuild(guildID string) {
	f.invalidated = append(f.invalidated, guildID)
}

type fakeGuildStore struct {
	setupChannel string
	deleted      []string
	err          error
}

func (f *fakeGuildStore) SetSetupChannel(ctx context.Context, guildID, channelID string) error {
	if f.err != nil {
		return f.err
	}
	f.setupChannel = channelID
	return nil
}

func (f *fakeGuildStore) DeleteGuild(ctx context.Context, guildID string) error {
	f.deleted = append(f.deleted, guildID)
	return f.err
}

type recordingDispatcher struct {
	messages []state.Message
}

func (d *recordingDispatcher) Handle(ctx context.Context, msg state.Message) error {
	d.messages = append(d.messages, msg)
	return nil
}

type handlerHarness struct {
	handler    *Handler
	voice      *fakeVoice
	settings   *fakeGuildSettings
	store      *fakeGuildStore
	dispatcher *recordingDispatcher
}

func newHandlerHarness() *handlerHarness {
	policy := state.DefaultGuildPolicy(testGuild)
	policy.SetupChannelID = textChan

	h := &handlerHarness{
		voice:      newFakeVoice(),
		settings:   &fakeGuildSettings{policy: policy},
		store:      &fakeGuildStore{},
		dispatcher: &recordingDispatcher{},
	}
	h.handler = NewHandler(h.dispatcher, h.voice, h.settings, h.store, zap.NewNop())
	return h
}

func commandMessage(content string) state.Message {
	return state.Message{
		GuildID:   testGuild,
		ChannelID: textChan,
		Content:   content,
		Author:    state.Author{ID: "2", Username: "alice"},
		Voice:     state.VoicePresence{ChannelID: voiceChan, HumanOccupants: 1},
	}
}

func TestHandleCommand_Join(t *testing.T) {
	h := newHandlerHarness()

	reply, handled := h.handler.handleCommand(context.Background(), commandMessage("-JOIN"))
	assert.True(t, handled)
	assert.Equal(t, "Joined <#300>.", reply)
	assert.Equal(t, []string{voiceChan}, h.voice.joined)
}

func TestHandleCommand_JoinRefusals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *handlerHarness, msg *state.Message)
		want   string
	}{
		{
			name:   "wrong channel",
			mutate: func(h *handlerHarness, msg *state.Message) { msg.ChannelID = "other" },
			want:   "Run this in <#200>.",
		},
		{
			name:   "not set up",
			mutate: func(h *handlerHarness, msg *state.Message) { h.settings.policy.SetupChannelID = "" },
			want:   "No channel is set up yet. An administrator can run `-setup` in the channel to read from.",
		},
		{
			name:   "author not in voice",
			mutate: func(h *handlerHarness, msg *state.Message) { msg.Voice = state.VoicePresence{} },
			want:   "You need to be in a voice channel.",
		},
		{
			name:   "already there",
			mutate: func(h *handlerHarness, msg *state.Message) { msg.BotVoiceChannelID = voiceChan },
			want:   "I'm already in your voice channel.",
		},
		{
			name:   "timeout",
			mutate: func(h *handlerHarness, msg *state.Message) { h.voice.joinErr = apperrors.ErrJoinTimeout },
			want:   "Timed out joining your voice channel, try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandlerHarness()
			msg := commandMessage("-join")
			tt.mutate(h, &msg)

			reply, handled := h.handler.handleCommand(context.Background(), msg)
			assert.True(t, handled)
			assert.Equal(t, tt.want, reply)
			assert.Empty(t, h.voice.joined)
		})
	}
}

func TestHandleCommand_Leave(t *testing.T) {
	h := newHandlerHarness()

	reply, _ := h.handler.handleCommand(context.Background(), commandMessage("-leave"))
	assert.Equal(t, "I'm not in a voice channel.", reply)

	msg := commandMessage("-leave")
	msg.BotVoiceChannelID = "elsewhere"
	reply, _ = h.handler.handleCommand(context.Background(), msg)
	assert.Equal(t, "You need to be in my voice channel to do that.", reply)

	msg.Author.IsAdmin = true
	reply, _ = h.handler.handleCommand(context.Background(), msg)
	assert.Equal(t, "Left the voice channel.", reply)
	assert.Equal(t, []string{testGuild}, h.voice.left)
}

func TestHandleCommand_Setup(t *testing.T) {
	h := newHandlerHarness()

	reply, handled := h.handler.handleCommand(context.Background(), commandMessage("-setup"))
	assert.True(t, handled)
	assert.Equal(t, "Only administrators can change the setup channel.", reply)
	assert.Empty(t, h.store.setupChannel)

	msg := commandMessage("-setup")
	msg.ChannelID = "new-text"
	msg.Author.IsAdmin = true
	reply, _ = h.handler.handleCommand(context.Background(), msg)
	assert.Equal(t, "Messages in <#new-text> will now be read aloud.", reply)
	assert.Equal(t, "new-text", h.store.setupChannel)
	assert.Equal(t, []string{testGuild}, h.settings.invalidated)

	h.store.err = errors.New("neo4j down")
	reply, _ = h.handler.handleCommand(context.Background(), msg)
	assert.Equal(t, "Something went wrong saving the setup channel.", reply)
}

func TestHandleCommand_PassesThroughEverythingElse(t *testing.T) {
	h := newHandlerHarness()
	ctx := context.Background()

	for _, content := range []string{"hello", "-", "-play something", "join"} {
		_, handled := h.handler.handleCommand(ctx, commandMessage(content))
		assert.False(t, handled, content)
	}

	bot := commandMessage("-join")
	bot.Author.Bot = true
	_, handled := h.handler.handleCommand(ctx, bot)
	assert.False(t, handled)

	h.settings.err = errors.New("settings down")
	_, handled = h.handler.handleCommand(ctx, commandMessage("-join"))
	assert.False(t, handled)
}

func TestHandleMessage_DispatchesGuildMessages(t *testing.T) {
	h := newHandlerHarness()
	s := &discordgo.Session{State: newTestState(t)}
	h.voice.registry.Put(&stubSession{guildID: testGuild, channelID: voiceChan})

	h.handler.HandleMessage(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		GuildID:   testGuild,
		ChannelID: textChan,
		Content:   "hello",
		Author:    &discordgo.User{ID: "3", Username: "bob"},
	}})
	// The bot's own message and DMs never reach the dispatcher
	h.handler.HandleMessage(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: testGuild, ChannelID: textChan, Content: "echo", Author: &discordgo.User{ID: botUserID},
	}})
	h.handler.HandleMessage(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "dm", Content: "psst", Author: &discordgo.User{ID: "3"},
	}})

	require.Len(t, h.dispatcher.messages, 1)
	msg := h.dispatcher.messages[0]
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, voiceChan, msg.BotVoiceChannelID)
	assert.Equal(t, voiceChan, msg.Voice.ChannelID)
}

// leaveVoice drops a user's cached voice state the way the gateway update would
func leaveVoice(t *testing.T, st *discordgo.State, userID string) {
	t.Helper()
	guild, err := st.Guild(testGuild)
	require.NoError(t, err)

	st.Lock()
	defer st.Unlock()
	kept := guild.VoiceStates[:0]
	for _, vs := range guild.VoiceStates {
		if vs.UserID != userID {
			kept = append(kept, vs)
		}
	}
	guild.VoiceStates = kept
}

func TestEvents_LeaveWhenChannelEmpties(t *testing.T) {
	h := newHandlerHarness()
	st := newTestState(t)
	s := &discordgo.Session{State: st}
	h.voice.registry.Put(&stubSession{guildID: testGuild, channelID: voiceChan})

	// One human leaves, one remains
	leaveVoice(t, st, "2")
	h.handler.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: testGuild, UserID: "2"},
		BeforeUpdate: &discordgo.VoiceState{GuildID: testGuild, UserID: "2", ChannelID: voiceChan},
	})
	assert.Empty(t, h.voice.left)

	leaveVoice(t, st, "3")
	h.handler.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: testGuild, UserID: "3"},
		BeforeUpdate: &discordgo.VoiceState{GuildID: testGuild, UserID: "3", ChannelID: voiceChan},
	})
	assert.Equal(t, []string{testGuild}, h.voice.left)
}

func TestEvents_BotDisconnectedExternally(t *testing.T) {
	h := newHandlerHarness()
	s := &discordgo.Session{State: newTestState(t)}
	h.voice.registry.Put(&stubSession{guildID: testGuild, channelID: voiceChan})

	h.handler.HandleVoiceStateUpdate(s, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: testGuild, UserID: botUserID},
	})
	assert.Equal(t, []string{testGuild}, h.voice.dropped)
	assert.Empty(t, h.voice.left, "Discord already closed the connection")
}

func TestEvents_ChannelDelete(t *testing.T) {
	h := newHandlerHarness()
	s := &discordgo.Session{State: newTestState(t)}
	h.voice.registry.Put(&stubSession{guildID: testGuild, channelID: voiceChan})

	h.handler.HandleChannelDelete(s, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: textChan, GuildID: testGuild}})
	assert.Empty(t, h.voice.left)

	h.handler.HandleChannelDelete(s, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: voiceChan, GuildID: testGuild}})
	assert.Equal(t, []string{testGuild}, h.voice.left)
}

func TestEvents_GuildDelete(t *testing.T) {
	h := newHandlerHarness()
	s := &discordgo.Session{State: newTestState(t)}

	h.handler.HandleGuildDelete(s, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: testGuild, Unavailable: true}})
	assert.Empty(t, h.voice.forgot)

	h.handler.HandleGuildDelete(s, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: testGuild}})
	assert.Equal(t, []string{testGuild}, h.voice.forgot)
	assert.Equal(t, []string{testGuild}, h.settings.invalidated)
	assert.Equal(t, []string{testGuild}, h.store.deleted)
}
