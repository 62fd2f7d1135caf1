package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/page"
)

// Rows is the backing store decorated by CachedSource
type Rows interface {
	Rows(ctx context.Context, table string) ([]page.Map, error)
	Insert(ctx context.Context, table string, record page.Map) (page.Map, error)
}

// TableKey returns the cache key holding the rows of a table
func TableKey(table string) string {
	return "table:" + table
}

// CachedSource serves table rows from a cache, falling back to the backing
// store on a miss. Writes through it invalidate the table entry.
type CachedSource struct {
	next   Rows
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSource decorates next with cache; a zero ttl uses the cache default
func NewCachedSource(next Rows, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Rows returns the cached rows of table, loading them on a miss
func (s *CachedSource) Rows(ctx context.Context, table string) ([]page.Map, error) {
	key := TableKey(table)
	data, err := s.cache.Get(ctx, key)
	if err == nil {
		var rows []page.Map
		if err := json.Unmarshal(data, &rows); err == nil {
			return rows, nil
		}
		s.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	} else if !IsCacheMiss(err) {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	rows, err := s.next.Rows(ctx, table)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rows); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rows, nil
}

// Insert writes through to the backing store and drops the table entry
func (s *CachedSource) Insert(ctx context.Context, table string, record page.Map) (page.Map, error) {
	row, err := s.next.Insert(ctx, table, record)
	if err != nil {
		return nil, err
	}
	if err := s.Invalidate(ctx, table); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("table", table), zap.Error(err))
	}
	return row, nil
}

// Invalidate drops the cached rows of table
func (s *CachedSource) Invalidate(ctx context.Context, table string) error {
	if err := s.cache.Delete(ctx, TableKey(table)); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", table, err)
	}
	return nil
}
