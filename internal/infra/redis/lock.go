package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edunotify/edunotify/internal/domain"
	"github.com/edunotify/edunotify/internal/lock"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix  = "lock:"
	defaultLockTTL = 10 * time.Minute
)

// releaseScript deletes the key only when it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only when the key still holds our token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var _ lock.Locker = (*RedisLocker)(nil)

// RedisLocker implements lease locks with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client   *goredis.Client
	newToken func() string
}

func NewRedisLocker(client *goredis.Client) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisLocker{client: client, newToken: uuid.NewString}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (lock.Lease, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: lock name is required", domain.ErrValidation)
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	key := lockKeyPrefix + name
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: lock %q is held", domain.ErrConflict, name)
	}

	return &redisLease{client: l.client, key: key, token: token}, nil
}

type redisLease struct {
	client *goredis.Client
	key    string
	token  string
}

func (l *redisLease) Token() string { return l.token }

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	ok, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: lock %q was lost", domain.ErrConflict, strings.TrimPrefix(l.key, lockKeyPrefix))
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
