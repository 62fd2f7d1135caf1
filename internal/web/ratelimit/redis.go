package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, counts it and records the request when
// under the limit, atomically. Scores are unix milliseconds. Returns
// {allowed, count, oldest score}; the set is never empty after the check.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, ARGV[2])
local current = redis.call('ZCARD', key)
local allowed = 0
if current < limit then
	redis.call('ZADD', key, ARGV[1], ARGV[5])
	current = current + 1
	allowed = 1
end
redis.call('EXPIRE', key, ARGV[4])
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {allowed, current, oldest[2]}
`)

// RedisLimiter is a sliding window limiter shared by every server process
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// RedisConfig holds configuration for the redis limiter
type RedisConfig struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// NewRedisLimiter creates a redis limiter
func NewRedisLimiter(client *redis.Client, config RedisConfig) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window < time.Second {
		return nil, errors.New("window must be at least one second")
	}
	if config.Prefix == "" {
		config.Prefix = "pagecraft:ratelimit:"
	}
	return &RedisLimiter{client: client, limit: config.Limit, window: config.Window, prefix: config.Prefix}, nil
}

// Allow records one request of key if the window has room
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	now := time.Now()
	res, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMilli(),
		now.Add(-r.window).UnixMilli(),
		r.limit,
		int(r.window.Seconds()),
		uuid.NewString(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return nil, errors.New("unexpected redis script result")
	}
	allowed, ok1 := res[0].(int64)
	count, ok2 := res[1].(int64)
	oldestRaw, ok3 := res[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("unexpected redis script result")
	}
	oldest, err := strconv.ParseFloat(oldestRaw, 64)
	if err != nil {
		return nil, fmt.Errorf("unexpected redis script result: %w", err)
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Info{
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(int64(oldest)).Add(r.window),
		Allowed:   allowed == 1,
	}, nil
}

// Reset forgets every request recorded for key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
