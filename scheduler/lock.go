package scheduler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLocker implements Locker over a shared Redis instance with a
// SET NX PX lock: two ilmd replicas racing for the same tenant/family only
// ever let one through per lock window.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker wraps an already-connected redis.Client.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) {
	l.rdb.Del(ctx, key)
}

var _ Locker = (*RedisLocker)(nil)
