// Package settings serves guild and user policy from a short-lived cache in front of the store.
package settings

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ttsbot/backend/internal/state"
	apperrors "ttsbot/backend/pkg/errors"
)

// Store is the persistent settings backend
type Store interface {
	FetchGuildSettings(ctx context.Context, guildID string) (state.GuildPolicy, error)
	FetchUserSettings(ctx context.Context, userID string) (state.UserPolicy, error)
	FetchNickname(ctx context.Context, guildID, userID string) (string, error)
}

// CacheMetrics receives cache hit/miss counts
type CacheMetrics interface {
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
}

// Cache kinds, also used as metric labels
const (
	kindGuild    = "guild"
	kindUser     = "user"
	kindNickname = "nickname"
)

// maxEntries bounds each cache; the least recently used entry goes first
const maxEntries = 10000

// Provider answers policy lookups. Concurrent misses for the same key share one store query.
type Provider struct {
	store   Store
	metrics CacheMetrics
	logger  *zap.Logger

	// nil when caching is disabled
	guilds    *expirable.LRU[string, state.GuildPolicy]
	users     *expirable.LRU[string, state.UserPolicy]
	nicknames *expirable.LRU[string, string]
	group     singleflight.Group
}

// NewProvider creates a provider caching for ttl. A zero ttl disables caching.
func NewProvider(store Store, ttl time.Duration, metrics CacheMetrics, logger *zap.Logger) *Provider {
	p := &Provider{store: store, metrics: metrics, logger: logger}
	if ttl > 0 {
		p.guilds = expirable.NewLRU[string, state.GuildPolicy](maxEntries, nil, ttl)
		p.users = expirable.NewLRU[string, state.UserPolicy](maxEntries, nil, ttl)
		p.nicknames = expirable.NewLRU[string, string](maxEntries, nil, ttl)
	}
	return p
}

// GuildPolicy returns the guild's policy
func (p *Provider) GuildPolicy(ctx context.Context, guildID string) (state.GuildPolicy, error) {
	return load(ctx, p, p.guilds, kindGuild, guildID, func(ctx context.Context) (state.GuildPolicy, error) {
		return p.store.FetchGuildSettings(ctx, guildID)
	})
}

// UserPolicy returns the user's policy
func (p *Provider) UserPolicy(ctx context.Context, userID string) (state.UserPolicy, error) {
	return load(ctx, p, p.users, kindUser, userID, func(ctx context.Context) (state.UserPolicy, error) {
		return p.store.FetchUserSettings(ctx, userID)
	})
}

// Nickname returns the user's spoken-name override in the guild
func (p *Provider) Nickname(ctx context.Context, guildID, userID string) (string, error) {
	return load(ctx, p, p.nicknames, kindNickname, guildID+":"+userID, func(ctx context.Context) (string, error) {
		return p.store.FetchNickname(ctx, guildID, userID)
	})
}

// InvalidateGuild drops everything cached for a guild
func (p *Provider) InvalidateGuild(guildID string) {
	if p.guilds == nil {
		return
	}
	p.guilds.Remove(guildID)
	prefix := guildID + ":"
	for _, key := range p.nicknames.Keys() {
		if strings.HasPrefix(key, prefix) {
			p.nicknames.Remove(key)
		}
	}
}

// InvalidateUser drops a user's cached policy
func (p *Provider) InvalidateUser(userID string) {
	if p.users != nil {
		p.users.Remove(userID)
	}
}

func load[V any](ctx context.Context, p *Provider, cache *expirable.LRU[string, V], kind, key string, fetch func(context.Context) (V, error)) (V, error) {
	if cache != nil {
		if v, ok := cache.Get(key); ok {
			p.recordHit(kind)
			return v, nil
		}
	}
	p.recordMiss(kind)

	result, err, shared := p.group.Do(kind+"/"+key, func() (interface{}, error) {
		// The first caller's cancellation must not fail everyone sharing the query
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		if cache != nil {
			cache.Add(key, v)
		}
		return v, nil
	})
	if err != nil {
		var zero V
		p.logger.Warn("Settings lookup failed",
			zap.String("kind", kind),
			zap.String("key", key),
			zap.Bool("shared", shared),
			zap.Error(err),
		)
		return zero, apperrors.NewSettingsQueryFailed(kind+":"+key, err)
	}
	return result.(V), nil
}

func (p *Provider) recordHit(kind string) {
	if p.metrics != nil {
		p.metrics.RecordCacheHit(kind)
	}
}

func (p *Provider) recordMiss(kind string) {
	if p.metrics != nil {
		p.metrics.RecordCacheMiss(kind)
	}
}
