package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript increments the counter and starts the window on the first hit.
// Running it as one script keeps INCR and PEXPIRE atomic.
var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) key(k string) string {
	return l.prefix + k
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := allowScript.Run(ctx, l.client, []string{l.key(key)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return count <= int64(limit), nil
}

func (l *RedisLimiter) TimeUntilReset(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, l.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit ttl %s: %w", key, err)
	}
	// -2: missing key, -1: no expiry
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
