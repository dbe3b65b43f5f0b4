package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLeaseTTL bounds how long a crashed holder can block others.
	DefaultLeaseTTL = 30 * time.Second

	acquireRetryDelay = 100 * time.Millisecond
	maxAcquireWait    = 5 * time.Second
)

// releaseScript deletes the key only if this holder still owns it, so an
// expired lease taken over by another process is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a cross-process Locker backed by a redis lease.
type RedisLocker struct {
	client   *redis.Client
	leaseTTL time.Duration
}

// NewRedisLocker creates a redis-backed locker with the default lease.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, leaseTTL: DefaultLeaseTTL}
}

func (r *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := "lock:" + key
	token := uuid.NewString()

	if err := r.acquire(ctx, redisKey, token); err != nil {
		return err
	}
	defer r.release(redisKey, token)

	return fn(ctx)
}

func (r *RedisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(maxAcquireWait)
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.leaseTTL).Result()
		if err != nil {
			return fmt.Errorf("lock: failed to acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquireRetryDelay):
		}
	}
}

func (r *RedisLocker) release(key, token string) {
	// Release must not be tied to the caller's context: the critical
	// section may have returned because that context was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = releaseScript.Run(ctx, r.client, []string{key}, token).Result()
}
