package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
)

const redisConnectTimeout = 3 * time.Second

// Redis holds the client used for notification fan-out.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis builds the client. An unreachable server is logged, not fatal:
// notifications are stored in Postgres first and publishing degrades to a
// logged failure until Redis comes back.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout(),
	})
	r := &Redis{client: client}

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, notification publishing will fail until it recovers",
			zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return r
}

// Client exposes the client for publishers.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}

// Ping reports whether Redis answers; used by the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
