package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sliding windows in a shared Redis instance, so multiple
// service replicas agree on one admission decision per identity. Each
// identity maps to a sorted set of admitted-request timestamps; the trim,
// count, and conditional append run as a single Lua script, which makes the
// check atomic without client-side locking.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// Timestamps are scored in microseconds: they fit a Lua double exactly,
// nanoseconds would not.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, tostring(oldest[2])}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, math.ceil(window / 1000))
return {1, tostring(max - count - 1)}
`)

// NewRedisStore creates a store over an existing Redis client. The prefix
// namespaces limiter keys ("ratelimit:" when empty).
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

var _ Store = (*RedisStore)(nil)

// Admit runs the trim-count-append script for the key.
func (s *RedisStore) Admit(ctx context.Context, key string, now time.Time, policy Policy) (Decision, error) {
	member := fmt.Sprintf("%d-%s", now.UnixMicro(), uuid.NewString())
	result, err := admitScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMicro(),
		policy.Window.Microseconds(),
		policy.MaxRequests,
		member,
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(result) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	allowed, _ := result[0].(int64)
	if allowed == 1 {
		var remaining int64
		if str, ok := result[1].(string); ok {
			_, _ = fmt.Sscanf(str, "%d", &remaining)
		}
		return Decision{Allowed: true, Remaining: int(remaining)}, nil
	}

	var oldestMicro int64
	if str, ok := result[1].(string); ok {
		_, _ = fmt.Sscanf(str, "%d", &oldestMicro)
	}
	retryAfter := policy.Window - now.Sub(time.UnixMicro(oldestMicro))
	if retryAfter < 0 || oldestMicro == 0 {
		retryAfter = 0
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
}
