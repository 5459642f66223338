package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadClient points at a closed port so every command fails fast.
func deadClient() *Client {
	return Wrap(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	}))
}

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "updownbot:lock:reconcile", lockKey("reconcile"))
	assert.Equal(t, "updownbot:ratelimit:orders", rateLimitKey("orders"))
	assert.Equal(t, "updownbot:decisions", busName("decisions"))
	assert.Equal(t, "updownbot:signal:memo", memoKey)
	assert.Equal(t, "updownbot:signal:catalyst", catalystKey)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "ZADD")
}

func TestNewRateLimiterDefaults(t *testing.T) {
	c := deadClient()
	defer c.Close()

	rl := NewRateLimiter(c, 0, 0)
	assert.Equal(t, 1, rl.limit)
	assert.Equal(t, time.Second, rl.window)

	rl = NewRateLimiter(c, 5, 2*time.Second)
	assert.Equal(t, 5, rl.limit)
	assert.Equal(t, 2*time.Second, rl.window)
}

func TestCommandErrorsAreWrapped(t *testing.T) {
	c := deadClient()
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRateLimiter(c, 5, time.Second).Allow(ctx, "orders", 5, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: rate limit allow orders")

	_, err = NewLockManager(c).Acquire(ctx, "reconcile", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: acquire lock reconcile")

	_, err = NewSignalStateStore(c).LoadMemo(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: get updownbot:signal:memo")

	err = NewSignalBus(c).Publish(ctx, "positions", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: publish positions")

	assert.Error(t, c.Ping(ctx))
}
