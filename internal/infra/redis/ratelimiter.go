package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/ratelimit"
	"github.com/edunotify/edunotify/internal/retry"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimit  int64 = 1
	defaultWindow       = time.Second
	keyPrefix           = "sms:ratelimit"
	minWait             = 10 * time.Millisecond
	maxWait             = 250 * time.Millisecond
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed-window send budget per gateway, shared by every SMS service replica.
type RedisRateLimiter struct {
	client *goredis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	script *goredis.Script
}

// NewRedisRateLimiter allows limit sends per window for each key.
func NewRedisRateLimiter(client *goredis.Client, limit int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(
		client,
		int64(limit),
		window,
		time.Now,
		retry.SleepWithContext,
	)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if window < time.Millisecond {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = retry.SleepWithContext
	}

	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    nowFn,
		sleep:  sleepFn,
		script: allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	bucket := r.now().UTC().UnixMilli() / r.window.Milliseconds()
	redisKey := fmt.Sprintf("%s:%s:%d", keyPrefix, normalizedKey, bucket)
	result, err := r.script.Run(ctx, r.client, []string{redisKey}, r.limit, r.window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until key has budget, sleeping toward the next window boundary between checks.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, err := r.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, r.untilNextWindow()); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) untilNextWindow() time.Duration {
	windowMs := r.window.Milliseconds()
	remaining := time.Duration(windowMs-r.now().UTC().UnixMilli()%windowMs) * time.Millisecond
	return min(max(remaining, minWait), maxWait)
}
