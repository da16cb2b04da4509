package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/outreach/pkg/logger"
)

// setupTestRedis creates a test Redis client using miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := &Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient(context.Background(), "redis://"+mr.Addr(), logger.Nop())
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	_, err = NewClient(context.Background(), "::not a url", logger.Nop())
	assert.Error(t, err)
}

func TestTryLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	token, ok, err := client.TryLock(ctx, "sync:t1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = client.TryLock(ctx, "sync:t1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Unlock(ctx, "sync:t1", "someone-else"))
	assert.True(t, mr.Exists("outreach:lock:sync:t1"))

	require.NoError(t, client.Unlock(ctx, "sync:t1", token))
	assert.False(t, mr.Exists("outreach:lock:sync:t1"))
}

func TestTryLockExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := client.TryLock(ctx, "tick", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = client.TryLock(ctx, "tick", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
