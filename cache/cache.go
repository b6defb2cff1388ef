// Package cache provides the token cache stores used by the access token
// manager. A store persists opaque serialized values under string keys; the
// only semantics a store must honor are write, read, and miss.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Read when no value exists under the key.
var ErrMiss = errors.New("cache miss")

// Store persists serialized access tokens under string keys.
// Values are opaque bytes; stores must not inspect or rewrite them.
type Store interface {
	Write(ctx context.Context, key string, value []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
}

// NopStore is the fallback store when no cache is configured. Every read
// misses and every write is discarded, so the client degrades to minting a
// fresh token per expiry.
type NopStore struct{}

func (NopStore) Write(ctx context.Context, key string, value []byte) error {
	return nil
}

func (NopStore) Read(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrMiss
}
