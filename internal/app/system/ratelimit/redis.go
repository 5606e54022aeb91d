package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindowScript trims, counts and conditionally records a hit in one
// round trip so concurrent instances cannot overshoot the budget.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max, ARGV[4] member
// Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first == 2 then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RedisStore keeps sliding windows in Redis sorted sets, one per key, with
// request timestamps as scores. Keys expire on their own after one idle
// window, so Prune has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. Keys are namespaced under prefix
// (default "ratelimit:").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, max int, span time.Duration, now time.Time) (Result, error) {
	nowMs := now.UnixMilli()
	spanMs := span.Milliseconds()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	raw, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key}, nowMs, spanMs, max, member).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis sliding window: %w", err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply %v", raw)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	oldest, _ := vals[2].(int64)

	res := Result{
		Allowed: allowed == 1,
		ResetAt: time.UnixMilli(oldest + spanMs),
	}
	if res.Allowed {
		res.Remaining = max - int(count)
	} else {
		res.RetryAfter = res.ResetAt.Sub(now)
	}
	return res, nil
}

// Prune implements Store.
func (s *RedisStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
