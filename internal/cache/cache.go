// Package cache is the cache-aside layer for visitor detail reads. It is an
// optimization only; the entity store stays the source of truth.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/visitorgate/pkg/config"
	"github.com/diagnosis/visitorgate/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrMiss reports an absent or expired key.
var ErrMiss = errors.New("cache: miss")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func VisitorKey(id string) string { return "visitor:" + id }

// New picks the backend named by cfg.Driver. A redis backend that cannot be
// reached at start is replaced by the in-process store.
func New(ctx context.Context, cfg config.CacheConfig, rcfg config.RedisConfig) (Store, func() error) {
	mem := NewMemoryStore(cfg.MaxEntries)
	if cfg.Driver != "redis" {
		logger.Info("cache backend selected", "driver", "memory")
		return mem, func() error { return nil }
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-process cache", "addr", rcfg.Addr, "error", err)
		_ = client.Close()
		return mem, func() error { return nil }
	}

	logger.Info("cache backend selected", "driver", "redis", "addr", rcfg.Addr)
	return NewFallbackStore(NewRedisStore(client), mem), client.Close
}
