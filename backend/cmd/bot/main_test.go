package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ttsbot/backend/internal/voice"
)

type idleSession struct {
	guildID, channelID string
}

func (s *idleSession) GuildID() string   { return s.guildID }
func (s *idleSession) ChannelID() string { return s.channelID }
func (s *idleSession) Connected() bool   { return true }
func (s *idleSession) Enqueue(context.Context, voice.Track) (voice.TrackHandle, error) {
	return voice.NewPendingHandle(), nil
}

type countingTransport struct {
	leaves atomic.Int32
}

func (t *countingTransport) Join(ctx context.Context, guildID, channelID string) (voice.Session, error) {
	return &idleSession{guildID: guildID, channelID: channelID}, nil
}

func (t *countingTransport) Leave(ctx context.Context, guildID string) error {
	t.leaves.Add(1)
	return nil
}

func TestLeaveAll(t *testing.T) {
	tr := &countingTransport{}
	m := voice.NewManager(tr, time.Second, zap.NewNop())

	for _, g := range []string{"g1", "g2", "g3"} {
		_, err := m.Join(context.Background(), g, "vc-"+g)
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Registry().Len())

	assert.NoError(t, leaveAll(m, zap.NewNop()))
	assert.Equal(t, 0, m.Registry().Len())
	assert.Equal(t, int32(3), tr.leaves.Load())
}

func TestLeaveAll_NothingToDo(t *testing.T) {
	tr := &countingTransport{}
	m := voice.NewManager(tr, time.Second, zap.NewNop())

	assert.NoError(t, leaveAll(m, zap.NewNop()))
	assert.Equal(t, int32(0), tr.leaves.Load())
}
