// Package cache stores table rows fetched by runtime Tables in memory or in
// Redis, and provides ETag helpers for conditional page reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value; a missing or expired key yields ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value; a zero ttl uses the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Clear removes every key under the configured prefix
	Clear(ctx context.Context) error

	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL applies when Set is called with a zero ttl; negative means no expiry
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "pagecraft:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// Options selects and configures a backend
type Options struct {
	Backend string
	Config  Config
	Redis   RedisOptions
}

// New builds the cache backend named by opts.Backend
func New(opts Options) (Cache, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryCache(opts.Config), nil
	case BackendRedis:
		c, err := NewRedisCache(opts.Redis, opts.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Redis.Addr, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
