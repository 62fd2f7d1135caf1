package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is an in-memory token bucket per key. Buckets refill
// continuously at Capacity tokens per Period.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity int
	period   time.Duration
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

type bucket struct {
	tokens float64
	last   time.Time
}

// BucketConfig holds configuration for the token bucket limiter
type BucketConfig struct {
	Capacity int
	Period   time.Duration
	// CleanupInterval is how often idle buckets are dropped; zero disables it
	CleanupInterval time.Duration
}

// NewTokenBucket creates a token bucket limiter
func NewTokenBucket(config BucketConfig) *TokenBucket {
	if config.Period <= 0 {
		config.Period = time.Minute
	}
	tb := &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: config.Capacity,
		period:   config.Period,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go tb.cleanupLoop(config.CleanupInterval)
	}
	return tb
}

// Allow takes one token from the bucket of key
func (tb *TokenBucket) Allow(_ context.Context, key string) (*Info, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.capacity), last: now}
		tb.buckets[key] = b
	}

	rate := float64(tb.capacity) / tb.period.Seconds()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * rate
		if b.tokens > float64(tb.capacity) {
			b.tokens = float64(tb.capacity)
		}
		b.last = now
	}

	info := &Info{Limit: tb.capacity}
	// ResetAt is when the bucket is full again, or when a denied caller
	// gets its next token
	wait := float64(tb.capacity) - b.tokens
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
		wait++
	} else {
		wait = 1 - b.tokens
	}
	info.Remaining = int(b.tokens)
	info.ResetAt = now.Add(time.Duration(wait / rate * float64(time.Second)))
	return info, nil
}

func (tb *TokenBucket) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.sweep()
		case <-tb.done:
			return
		}
	}
}

// sweep drops buckets idle for two periods; they would be full anyway
func (tb *TokenBucket) sweep() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	threshold := tb.now().Add(-2 * tb.period)
	for key, b := range tb.buckets {
		if b.last.Before(threshold) {
			delete(tb.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() { close(tb.done) })
	return nil
}
