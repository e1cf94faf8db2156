package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces artifact keys.
const DefaultKeyPrefix = "marketshard"

// setter is the subset of redis.Cmdable the store needs.
type setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore writes artifacts as JSON strings under <Prefix>:<name>.
type RedisStore struct {
	client setter
	Prefix string
	TTL    time.Duration // 0 keeps keys forever
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, Prefix: prefix, TTL: ttl}
}

func (s *RedisStore) Put(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.client.Set(ctx, s.Key(name), data, s.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.Key(name), err)
	}
	return nil
}

// Key returns the redis key for an artifact.
func (s *RedisStore) Key(name string) string {
	return s.Prefix + ":" + name
}
