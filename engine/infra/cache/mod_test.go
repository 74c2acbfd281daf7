package cache

import (
	"testing"
	"time"

	"github.com/compozy/tenantflow/pkg/config"
	"github.com/compozy/tenantflow/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupCache_ModeAware(t *testing.T) {
	t.Run("Should create miniredis in standalone mode", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mgr := config.NewManager(config.NewService())
		_, err := mgr.Load(ctx, config.NewDefaultProvider())
		require.NoError(t, err)
		t.Cleanup(func() { _ = mgr.Close(ctx) })
		ctx = config.ContextWithManager(ctx, mgr)
		cfg := mgr.Get()
		cfg.Mode = config.ModeDistributed
		cfg.Redis.Mode = config.ModeStandalone

		c, cleanup, err := SetupCache(ctx)
		require.NoError(t, err)
		t.Cleanup(cleanup)
		require.NoError(t, c.HealthCheck(ctx))
		lock, err := c.Locker.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.NoError(t, lock.Release(ctx))
	})
	t.Run("Should fail in distributed mode when Redis is unreachable", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mgr := config.NewManager(config.NewService())
		_, err := mgr.Load(ctx, config.NewDefaultProvider())
		require.NoError(t, err)
		t.Cleanup(func() { _ = mgr.Close(ctx) })
		ctx = config.ContextWithManager(ctx, mgr)
		cfg := mgr.Get()
		cfg.Mode = config.ModeDistributed
		cfg.Redis.Mode = config.ModeDistributed
		cfg.Redis.URL = "redis://invalid:0"
		_, _, err = SetupCache(ctx)
		assert.Error(t, err)
	})
}

func TestMiniredisEmbedded(t *testing.T) {
	t.Run("Should serve commands until closed", func(t *testing.T) {
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		mr, err := NewMiniredisEmbedded(ctx)
		require.NoError(t, err)
		require.NoError(t, mr.Client().Set(ctx, "key", "value", 0).Err())
		val, err := mr.Client().Get(ctx, "key").Result()
		require.NoError(t, err)
		assert.Equal(t, "value", val)
		assert.NotEmpty(t, mr.Addr())
		require.NoError(t, mr.Close(ctx))
	})
}
