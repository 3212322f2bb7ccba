package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/metrics"
)

// ErrRedisDegraded is returned by Safe* helpers while Redis is unreachable
var ErrRedisDegraded = fmt.Errorf("redis is in degraded mode")

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// RedisClient wraps Redis client with degraded mode support
type RedisClient struct {
	Client         *redis.Client
	degradedMode   bool
	degradedModeMu sync.RWMutex
	healthCheckMu  sync.Mutex
}

// NewRedisDB creates a new Redis client from config with degraded mode support
func NewRedisDB(cfg *RedisConfig) (*RedisClient, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	metrics.RecordRedisAvailable(true)
	return &RedisClient{Client: client}, nil
}

// NewRedisClientFrom wraps an existing go-redis client
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{Client: client}
}

// Close closes the Redis client connection
func (r *RedisClient) Close() {
	r.Client.Close()
}

// StartHealthCheck starts a background goroutine that periodically checks Redis health
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.HealthCheck(ctx); err != nil {
					logger.Warn("Redis health check failed", zap.Error(err))
				}
			}
		}
	}()
}

// IsDegraded returns true if Redis is in degraded mode
func (r *RedisClient) IsDegraded() bool {
	r.degradedModeMu.RLock()
	defer r.degradedModeMu.RUnlock()
	return r.degradedMode
}

func (r *RedisClient) setDegradedState(degraded bool) {
	r.degradedModeMu.Lock()
	defer r.degradedModeMu.Unlock()

	if r.degradedMode != degraded {
		r.degradedMode = degraded
		metrics.RecordRedisAvailable(!degraded)
		if degraded {
			logger.Warn("Redis entered degraded mode")
		} else {
			logger.Info("Redis recovered from degraded mode")
		}
	}
}

// HealthCheck pings Redis and updates degraded mode.
// Concurrent checks are serialized.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		r.setDegradedState(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.setDegradedState(false)
	return nil
}

// SafeGet performs a GET operation with degraded mode handling
func (r *RedisClient) SafeGet(ctx context.Context, key string) *redis.StringCmd {
	if r.IsDegraded() {
		return redis.NewStringResult("", ErrRedisDegraded)
	}
	return r.Client.Get(ctx, key)
}

// SafeSet performs a SET operation with degraded mode handling
func (r *RedisClient) SafeSet(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if r.IsDegraded() {
		return redis.NewStatusResult("", ErrRedisDegraded)
	}
	return r.Client.Set(ctx, key, value, expiration)
}

// SafeSetNX performs a SET NX operation with degraded mode handling
func (r *RedisClient) SafeSetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if r.IsDegraded() {
		return redis.NewBoolResult(false, ErrRedisDegraded)
	}
	return r.Client.SetNX(ctx, key, value, expiration)
}

// SafeDel performs a DEL operation with degraded mode handling
func (r *RedisClient) SafeDel(ctx context.Context, keys ...string) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, ErrRedisDegraded)
	}
	return r.Client.Del(ctx, keys...)
}

// SafeEval runs a Lua script with degraded mode handling
func (r *RedisClient) SafeEval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) *redis.Cmd {
	if r.IsDegraded() {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(ErrRedisDegraded)
		return cmd
	}
	return script.Run(ctx, r.Client, keys, args...)
}

// SafePublish performs a PUBLISH operation with degraded mode handling
func (r *RedisClient) SafePublish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, ErrRedisDegraded)
	}
	return r.Client.Publish(ctx, channel, message)
}

// SafeSAdd performs a SADD operation with degraded mode handling
func (r *RedisClient) SafeSAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, ErrRedisDegraded)
	}
	return r.Client.SAdd(ctx, key, members...)
}

// SafeSRem performs a SREM operation with degraded mode handling
func (r *RedisClient) SafeSRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, ErrRedisDegraded)
	}
	return r.Client.SRem(ctx, key, members...)
}

// SafeSMembers performs a SMEMBERS operation with degraded mode handling
func (r *RedisClient) SafeSMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	if r.IsDegraded() {
		return redis.NewStringSliceResult([]string{}, ErrRedisDegraded)
	}
	return r.Client.SMembers(ctx, key)
}

// SafeExpire performs an EXPIRE operation with degraded mode handling
func (r *RedisClient) SafeExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if r.IsDegraded() {
		return redis.NewBoolResult(false, ErrRedisDegraded)
	}
	return r.Client.Expire(ctx, key, expiration)
}
