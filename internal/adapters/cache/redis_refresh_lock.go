package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/ports"
)

const lockPollInterval = 100 * time.Millisecond

// releaseIfHolder deletes the lock key only when the stored holder token
// still matches, so a holder whose lock expired and was re-acquired by
// another process cannot release the new owner's lock.
var releaseIfHolder = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisRefreshLock serializes credential refresh across processes with a
// SET NX EX lock. The TTL bounds how long a crashed holder can block others.
type RedisRefreshLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisRefreshLock(client *redis.Client, keyPrefix, appKey string, ttl time.Duration, logger *slog.Logger) *RedisRefreshLock {
	return &RedisRefreshLock{
		client: client,
		key:    keyPrefix + ":lock:" + appKey,
		ttl:    ttl,
		logger: logger.With("module", "cache", "layer", "adapter"),
	}
}

func (l *RedisRefreshLock) Acquire(ctx context.Context, wait time.Duration) (ports.ReleaseFunc, bool, error) {
	holder := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		acquired, err := l.client.SetNX(ctx, l.key, holder, l.ttl).Result()
		if err != nil {
			return nil, false, err
		}
		if acquired {
			return l.releaseFunc(holder), true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *RedisRefreshLock) releaseFunc(holder string) ports.ReleaseFunc {
	return func(ctx context.Context) {
		if err := releaseIfHolder.Run(ctx, l.client, []string{l.key}, holder).Err(); err != nil {
			l.logger.Warn("refresh lock release failed",
				"operation", "lock_release",
				"outcome", "failure",
				"error", err.Error(),
			)
		}
	}
}
