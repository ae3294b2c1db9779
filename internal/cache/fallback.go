package cache

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/visitorgate/pkg/logger"
)

// FallbackStore fronts an external store with an in-process one. Errors from
// either side never reach the caller.
type FallbackStore struct {
	primary Store
	local   *MemoryStore
}

func NewFallbackStore(primary Store, local *MemoryStore) *FallbackStore {
	return &FallbackStore{primary: primary, local: local}
}

func (f *FallbackStore) Get(ctx context.Context, key string) (string, error) {
	v, err := f.primary.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrMiss) {
		logger.WarnContext(ctx, "cache get failed, treating as miss", "key", key, "error", err)
	}
	return f.local.Get(ctx, key)
}

func (f *FallbackStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := f.primary.Set(ctx, key, value, ttl); err != nil {
		logger.WarnContext(ctx, "cache set failed, writing in-process", "key", key, "error", err)
		return f.local.Set(ctx, key, value, ttl)
	}
	return nil
}

func (f *FallbackStore) Delete(ctx context.Context, key string) error {
	if err := f.primary.Delete(ctx, key); err != nil {
		logger.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
	}
	_ = f.local.Delete(ctx, key)
	return nil
}
