package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a bounded in-process store. Entries expire lazily: there is
// no janitor, a Get on an expired key removes it.
type MemoryStore struct {
	c          *gocache.Cache
	maxEntries int
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryStore{
		c:          gocache.New(gocache.NoExpiration, 0),
		maxEntries: maxEntries,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, found := m.c.Get(key)
	if !found {
		m.c.Delete(key)
		return "", ErrMiss
	}
	s, ok := v.(string)
	if !ok {
		m.c.Delete(key)
		return "", ErrMiss
	}
	return s, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if m.c.ItemCount() >= m.maxEntries {
		m.evict()
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *MemoryStore) Len() int { return m.c.ItemCount() }

// evict drops expired entries, then the entry closest to expiry when still full.
func (m *MemoryStore) evict() {
	m.c.DeleteExpired()
	if m.c.ItemCount() < m.maxEntries {
		return
	}
	var (
		victim string
		soonest int64
	)
	for k, item := range m.c.Items() {
		if victim == "" || (item.Expiration != 0 && (soonest == 0 || item.Expiration < soonest)) {
			victim, soonest = k, item.Expiration
		}
	}
	if victim != "" {
		m.c.Delete(victim)
	}
}
