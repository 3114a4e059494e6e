package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/critique/backend/internal/infrastructure/config"
)

// New builds the limiter selected by cfg.RateLimitBackend. When Redis is
// selected but unreachable it falls back to the in-memory limiter with a
// warning, since every instance then limits on its own.
func New(ctx context.Context, cfg config.HTTPConfig, redisCfg config.RedisConfig, logger *zap.Logger) (Limiter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.RateLimitBackend {
	case BackendMemory, "":
		return NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), nil
	case BackendRedis:
		limiter, err := NewRedisLimiter(ctx, &redis.Options{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}, cfg.RateLimitRequests, cfg.RateLimitWindow)
		if err == nil {
			logger.Info("Using Redis rate limiter", zap.String("addr", redisCfg.Addr()))
			return limiter, nil
		}
		logger.Warn("Redis unavailable, falling back to in-memory rate limiter",
			zap.Error(err),
		)
		return NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimitBackend)
	}
}
