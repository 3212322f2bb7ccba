package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"travelchat-backend/internal/database"
	"travelchat-backend/pkg/constants"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
)

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a cross-replica keyed lock built on SET NX PX.
// A holder that dies releases the key when ttl elapses.
type Locker struct {
	client *database.RedisClient
	ttl    time.Duration
	retry  time.Duration
}

// NewLocker creates a lock whose keys expire after ttl
func NewLocker(client *database.RedisClient, ttl time.Duration) *Locker {
	return &Locker{
		client: client,
		ttl:    ttl,
		retry:  constants.LockRetryInterval,
	}
}

// Lock blocks until key is acquired or ctx is done. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SafeSetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		metrics.RecordStoreRetry("redis", "lock", "contended")
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.client.SafeEval(releaseCtx, releaseScript, []string{lockKey}, token).Err(); err != nil && !isNil(err) {
			logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
