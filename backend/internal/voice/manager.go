package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"ttsbot/backend/internal/constants"
	apperrors "ttsbot/backend/pkg/errors"
)

// Manager owns the lock table and the registry and is the only way sessions are
// created or destroyed
type Manager struct {
	transport   Transport
	locks       *LockTable
	registry    *Registry
	joinTimeout time.Duration
	logger      *zap.Logger

	joinHooks  []func(guildID string, err error)
	leaveHooks []func(guildID string)
	hooksMu    sync.RWMutex
}

// NewManager creates a voice session manager
func NewManager(transport Transport, joinTimeout time.Duration, logger *zap.Logger) *Manager {
	if joinTimeout <= 0 {
		joinTimeout = constants.DefaultJoinTimeout
	}
	return &Manager{
		transport:   transport,
		locks:       NewLockTable(),
		registry:    NewRegistry(),
		joinTimeout: joinTimeout,
		logger:      logger,
	}
}

// Registry exposes the session registry for read-only callers
func (m *Manager) Registry() *Registry {
	return m.registry
}

// OnLeave registers a hook run after a guild's session is removed
func (m *Manager) OnLeave(hook func(guildID string)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.leaveHooks = append(m.leaveHooks, hook)
}

// OnJoin registers a hook run after every handshake attempt with its outcome
func (m *Manager) OnJoin(hook func(guildID string, err error)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.joinHooks = append(m.joinHooks, hook)
}

// Join connects to channelID, moving an existing session if it is elsewhere
func (m *Manager) Join(ctx context.Context, guildID, channelID string) (Session, error) {
	return m.join(ctx, guildID, channelID, false)
}

// Ensure returns the guild's connected session if there is one, otherwise joins channelID.
// Concurrent callers for the same guild produce a single handshake.
func (m *Manager) Ensure(ctx context.Context, guildID, channelID string) (Session, error) {
	if s, ok := m.registry.Get(guildID); ok && s.Connected() {
		return s, nil
	}
	return m.join(ctx, guildID, channelID, true)
}

// Session returns the guild's registered session. A registered session the transport
// no longer considers connected is not trusted: it is torn down and its channel rejoined.
func (m *Manager) Session(ctx context.Context, guildID string) (Session, bool, error) {
	s, ok := m.registry.Get(guildID)
	if !ok {
		return nil, false, nil
	}
	if s.Connected() {
		return s, true, nil
	}

	m.logger.Warn("Registered voice session is disconnected, rejoining",
		zap.String("guild_id", guildID),
		zap.String("channel_id", s.ChannelID()),
	)
	rejoined, err := m.join(ctx, guildID, s.ChannelID(), false)
	if err != nil {
		return nil, false, err
	}
	return rejoined, true, nil
}

func (m *Manager) join(ctx context.Context, guildID, channelID string, acceptAny bool) (session Session, err error) {
	token := m.locks.Token(guildID)
	if err := token.Lock(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.ErrJoinTimeout
		}
		return nil, err
	}
	defer token.Unlock()

	// Whoever held the token before us may have done our work already
	if existing, ok := m.registry.Get(guildID); ok {
		if existing.Connected() && (acceptAny || existing.ChannelID() == channelID) {
			return existing, nil
		}
		if !existing.Connected() {
			m.registry.Remove(guildID)
			m.runLeaveHooks(guildID)
		}
	}

	joinCtx, cancel := context.WithTimeout(ctx, m.joinTimeout)
	defer cancel()

	m.logger.Debug("Joining voice channel",
		zap.String("guild_id", guildID),
		zap.String("channel_id", channelID),
	)
	defer func() { m.runJoinHooks(guildID, err) }()

	session, err = m.transport.Join(joinCtx, guildID, channelID)
	if err != nil {
		// A failed join must never leave a half-open session behind
		if _, had := m.registry.Remove(guildID); had {
			m.runLeaveHooks(guildID)
		}
		m.teardown(ctx, guildID)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(joinCtx.Err(), context.DeadlineExceeded) {
			m.logger.Info("Voice join timed out",
				zap.String("guild_id", guildID),
				zap.String("channel_id", channelID),
				zap.Duration("timeout", m.joinTimeout),
			)
			return nil, apperrors.ErrJoinTimeout
		}
		return nil, apperrors.NewVoiceJoinFailed(guildID, channelID, err)
	}

	m.registry.Put(session)
	m.logger.Info("Joined voice channel",
		zap.String("guild_id", guildID),
		zap.String("channel_id", channelID),
	)
	return session, nil
}

// Leave disconnects from the guild. Leaving a guild without a session is a no-op.
func (m *Manager) Leave(ctx context.Context, guildID string) error {
	token := m.locks.Token(guildID)
	if err := token.Lock(ctx); err != nil {
		return err
	}
	defer token.Unlock()

	_, had := m.registry.Remove(guildID)
	m.runLeaveHooks(guildID)

	if err := m.transport.Leave(ctx, guildID); err != nil {
		return apperrors.NewVoiceLeaveFailed(guildID, err)
	}
	if had {
		m.logger.Info("Left voice channel", zap.String("guild_id", guildID))
	}
	return nil
}

// Disconnected forgets the guild's session after Discord has already closed it
func (m *Manager) Disconnected(ctx context.Context, guildID string) error {
	token := m.locks.Token(guildID)
	if err := token.Lock(ctx); err != nil {
		return err
	}
	defer token.Unlock()

	m.registry.Remove(guildID)
	m.runLeaveHooks(guildID)

	if d, ok := m.transport.(Dropper); ok {
		d.Drop(guildID)
		return nil
	}
	if err := m.transport.Leave(ctx, guildID); err != nil {
		return apperrors.NewVoiceLeaveFailed(guildID, err)
	}
	return nil
}

// ForgetGuild leaves and drops the guild's join token, used when the bot is removed from a guild
func (m *Manager) ForgetGuild(ctx context.Context, guildID string) error {
	err := m.Leave(ctx, guildID)
	m.locks.Evict(guildID)
	return err
}

func (m *Manager) teardown(ctx context.Context, guildID string) {
	leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.joinTimeout)
	defer cancel()

	if err := m.transport.Leave(leaveCtx, guildID); err != nil {
		m.logger.Warn("Failed to tear down half-open voice session",
			zap.String("guild_id", guildID),
			zap.Error(err),
		)
	}
}

func (m *Manager) runJoinHooks(guildID string, err error) {
	m.hooksMu.RLock()
	hooks := append([]func(string, error){}, m.joinHooks...)
	m.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(guildID, err)
	}
}

func (m *Manager) runLeaveHooks(guildID string) {
	m.hooksMu.RLock()
	hooks := append([]func(string){}, m.leaveHooks...)
	m.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(guildID)
	}
}
