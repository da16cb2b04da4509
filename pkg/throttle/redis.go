package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL keeps a day's counter around long enough for every timezone to finish that day.
const counterTTL = 72 * time.Hour

var reserveScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
	return 0
end
redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`)

var releaseScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisCounter keeps counters in Redis, updated by Lua scripts so the
// check and the increment are one atomic step.
type RedisCounter struct {
	rdb redis.UniversalClient
}

// NewRedisCounter creates a Redis-backed counter.
func NewRedisCounter(rdb redis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func redisKey(key, day string) string {
	return "outreach:throttle:" + key + ":" + day
}

// Reserve implements Counter.
func (c *RedisCounter) Reserve(ctx context.Context, key, day string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	n, err := reserveScript.Run(ctx, c.rdb, []string{redisKey(key, day)}, limit, int(counterTTL.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("failed reserving throttle slot: %w", err)
	}
	return n == 1, nil
}

// Release implements Counter.
func (c *RedisCounter) Release(ctx context.Context, key, day string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{redisKey(key, day)}).Err(); err != nil {
		return fmt.Errorf("failed releasing throttle slot: %w", err)
	}
	return nil
}

// Count implements Counter.
func (c *RedisCounter) Count(ctx context.Context, key, day string) (int, error) {
	n, err := c.rdb.Get(ctx, redisKey(key, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed reading throttle counter: %w", err)
	}
	return n, nil
}
