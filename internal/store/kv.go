// Package store holds the key-value backends and the job store built on them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/config"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("key not found")

// ErrInvalidKey is returned by backends that cannot address a key.
var ErrInvalidKey = errors.New("invalid key")

// KV is the storage abstraction shared by jobs, oauth state and tokens.
// A ttl of zero means the value does not expire.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open builds the backend named by cfg.Driver. The redis client is only
// used by the redis driver and may be nil otherwise.
func Open(cfg *config.StoreConfig, redisClient *redis.Client, logger arbor.ILogger) (KV, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "file":
		return NewFileKV(cfg.Dir)
	case "memory":
		return NewMemoryKV(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis store selected without a redis client")
		}
		return NewRedisKV(redisClient), nil
	case "badger":
		return NewBadgerKV(cfg.Dir, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
