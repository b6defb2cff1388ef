package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore delegates to a shared Redis instance. Entries are written
// without a TTL; the serialized token carries its own expiry and is
// overwritten on the next mint.
type RedisStore struct {
	cli *redis.Client
}

func NewRedisStore(cli *redis.Client) *RedisStore {
	return &RedisStore{cli: cli}
}

func (s *RedisStore) Write(ctx context.Context, key string, value []byte) error {
	return s.cli.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
