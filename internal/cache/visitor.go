package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/pkg/logger"
)

// VisitorCache stores visitor records as JSON under visitor:<id>.
type VisitorCache struct {
	store Store
	ttl   time.Duration
}

func NewVisitorCache(store Store, ttl time.Duration) *VisitorCache {
	return &VisitorCache{store: store, ttl: ttl}
}

// Get returns the cached visitor and whether it was found. Failures count as misses.
func (c *VisitorCache) Get(ctx context.Context, id string) (*domain.Visitor, bool) {
	raw, err := c.store.Get(ctx, VisitorKey(id))
	if err != nil {
		return nil, false
	}
	var v domain.Visitor
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		logger.WarnContext(ctx, "discarding unreadable cache entry", "visitor_id", id, "error", err)
		_ = c.store.Delete(ctx, VisitorKey(id))
		return nil, false
	}
	return &v, true
}

func (c *VisitorCache) Put(ctx context.Context, v *domain.Visitor) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, VisitorKey(v.ID), string(raw), c.ttl); err != nil {
		logger.WarnContext(ctx, "cache put failed", "visitor_id", v.ID, "error", err)
	}
}

// Invalidate drops the visitor's entry; it is called after every mutation.
func (c *VisitorCache) Invalidate(ctx context.Context, id string) {
	if err := c.store.Delete(ctx, VisitorKey(id)); err != nil {
		logger.WarnContext(ctx, "cache invalidate failed", "visitor_id", id, "error", err)
	}
}
