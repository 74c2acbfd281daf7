package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
)

// Cache bundles the Redis connection used for tenant locks.
type Cache struct {
	Client RedisInterface
	Locker *RedisLocker
}

func (c *Cache) HealthCheck(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Client.Ping(hctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// SetupCache connects to Redis according to the effective redis mode:
// an embedded miniredis in standalone mode, an external server otherwise.
func SetupCache(ctx context.Context) (*Cache, func(), error) {
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	switch cfg.EffectiveRedisMode() {
	case config.ModeStandalone:
		mr, err := NewMiniredisEmbedded(ctx)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := mr.Close(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Failed to stop embedded Redis", "error", err)
			}
		}
		return &Cache{Client: mr.Client(), Locker: NewRedisLocker(mr.Client())}, cleanup, nil
	case config.ModeDistributed:
		r, err := NewRedis(ctx, FromAppConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = r.Close() }
		return &Cache{Client: r, Locker: NewRedisLocker(r)}, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported redis mode %q", cfg.EffectiveRedisMode())
	}
}
