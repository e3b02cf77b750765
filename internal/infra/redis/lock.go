// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"docbatch/internal/domain"
	"docbatch/internal/domain/ports/adapter"
	"docbatch/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// RedisLocker is a single-owner lease: SETNX with a random token, released
// only by the holder of that token.
type RedisLocker struct {
	cli    *redis.Client
	prefix string
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, prefix: "docbatch:lock:"}
}

// TryLock does not wait; a held key returns domain.ErrLockNotAcquired at once.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		metrics.IncSweepLock("error")
		return "", err
	}
	if !ok {
		metrics.IncSweepLock("busy")
		return "", domain.ErrLockNotAcquired
	}
	metrics.IncSweepLock("acquired")
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{l.prefix + key}, token).Result()
	return err
}
