package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache implements an in-process cache with TTL support
type MemoryCache struct {
	data   sync.Map
	config Config
	cancel context.CancelFunc
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryCache creates an in-memory cache and starts its sweeper
func NewMemoryCache(config Config) *MemoryCache {
	ctx, cancel := context.WithCancel(context.Background())
	mc := &MemoryCache{config: config, cancel: cancel}
	go mc.sweep(ctx, time.Minute)
	return mc
}

func (m *MemoryCache) load(key string) (entry, bool) {
	full := m.config.Prefix + key
	v, ok := m.data.Load(full)
	if !ok {
		return entry{}, false
	}
	e := v.(entry)
	if e.expired(time.Now()) {
		m.data.Delete(full)
		return entry{}, false
	}
	return e, true
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := m.load(key)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	return e.value, nil
}

// Set stores a value in the cache with a TTL
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.data.Store(m.config.Prefix+key, e)
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Delete(m.config.Prefix + key)
	return nil
}

// Clear removes every value stored under the prefix
func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), m.config.Prefix) {
			m.data.Delete(k)
		}
		return true
	})
	return nil
}

// Exists checks if a live key exists in the cache
func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := m.load(key)
	return ok, nil
}

// Close stops the sweeper
func (m *MemoryCache) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *MemoryCache) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.data.Range(func(k, v any) bool {
				if v.(entry).expired(now) {
					m.data.Delete(k)
				}
				return true
			})
		}
	}
}
