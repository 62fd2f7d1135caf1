package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheWithClient(client, DefaultConfig())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func backends(t *testing.T) map[string]Cache {
	mem := NewMemoryCache(DefaultConfig())
	t.Cleanup(func() { _ = mem.Close() })
	rc, _ := setupTestRedis(t)
	return map[string]Cache{"memory": mem, "redis": rc}
}

func TestCache_Contract(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := c.Get(ctx, "table:contacts")
			require.Error(t, err)
			assert.True(t, IsCacheMiss(err))

			require.NoError(t, c.Set(ctx, "table:contacts", []byte(`[{"name":"Ada"}]`), time.Minute))
			got, err := c.Get(ctx, "table:contacts")
			require.NoError(t, err)
			assert.Equal(t, `[{"name":"Ada"}]`, string(got))

			ok, err := c.Exists(ctx, "table:contacts")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, c.Delete(ctx, "table:contacts"))
			ok, err = c.Exists(ctx, "table:contacts")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCache_Clear(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 150; i++ {
				require.NoError(t, c.Set(ctx, fmt.Sprintf("table:t%d", i), []byte("[]"), 0))
			}
			require.NoError(t, c.Clear(ctx))
			ok, err := c.Exists(ctx, "table:t42")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(Config{DefaultTTL: 10 * time.Millisecond, Prefix: "test:"})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), -1))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryCache_CopiesValue(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryCache_CanceledContext(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	defer c.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisCache_PrefixAndTTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "table:contacts", []byte("[]"), 0))
	assert.True(t, mr.Exists("pagecraft:table:contacts"))
	assert.Equal(t, 5*time.Minute, mr.TTL("pagecraft:table:contacts"))

	mr.FastForward(6 * time.Minute)
	_, err := c.Get(ctx, "table:contacts")
	assert.True(t, IsCacheMiss(err))
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := New(Options{Backend: BackendMemory, Config: DefaultConfig()})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	_ = c.Close()

	c, err = New(Options{Backend: BackendRedis, Config: DefaultConfig(), Redis: RedisOptions{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	_ = c.Close()

	_, err = New(Options{Backend: "memcached"})
	assert.Error(t, err)
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(Options{Backend: BackendRedis, Redis: RedisOptions{Addr: addr}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestIsCacheMiss(t *testing.T) {
	assert.True(t, IsCacheMiss(ErrCacheMiss{Key: "k"}))
	assert.True(t, IsCacheMiss(fmt.Errorf("wrapped: %w", ErrCacheMiss{Key: "k"})))
	assert.False(t, IsCacheMiss(errors.New("boom")))
}
