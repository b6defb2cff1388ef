package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"restkit/cache"
)

const cacheKeyPrefix = "access_token_"

// Manager holds at most one in-memory token and decides whether to reuse it,
// reload it from the cache, or mint a fresh one. It owns the cache key
// derivation and the serialization of tokens into the store.
type Manager struct {
	clientID string
	provider Provider
	store    cache.Store
	logger   *slog.Logger

	mu    sync.Mutex
	token *Token
}

func NewManager(clientID string, provider Provider, store cache.Store, logger *slog.Logger) *Manager {
	if store == nil {
		store = cache.NopStore{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		clientID: clientID,
		provider: provider,
		store:    store,
		logger:   logger,
	}
}

// CacheKey returns the store key for this client's token.
func (m *Manager) CacheKey() string {
	return cacheKeyPrefix + m.clientID
}

// Token returns a valid access token: the in-memory one when still live, a
// cached one when deserializable and unexpired, otherwise a freshly minted
// one. Fresh tokens are persisted to the store before being returned; store
// failures are logged and swallowed, never surfaced to the caller.
func (m *Manager) Token(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.token.Expired() {
		return m.token, nil
	}

	if tok := m.fromCache(ctx); tok != nil {
		m.token = tok
		return tok, nil
	}

	tok, err := m.provider.Mint(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(tok); err == nil {
		if err := m.store.Write(ctx, m.CacheKey(), raw); err != nil {
			m.logger.Warn("failed to write token to cache", "key", m.CacheKey(), "error", err)
		}
	}

	m.token = tok
	return tok, nil
}

// fromCache loads the cached token, or nil when absent, unreadable,
// undecodable, or expired. Everything short of a live token is a miss.
func (m *Manager) fromCache(ctx context.Context) *Token {
	raw, err := m.store.Read(ctx, m.CacheKey())
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			m.logger.Warn("failed to read token from cache", "key", m.CacheKey(), "error", err)
		}
		return nil
	}

	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		m.logger.Warn("discarding undecodable cached token", "key", m.CacheKey(), "error", err)
		return nil
	}
	if tok.Expired() {
		return nil
	}
	return &tok
}
