package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/compozy/tenantflow/engine/trigger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), s
}

func TestRedisLocker(t *testing.T) {
	t.Run("Should grant the lock to one holder at a time", func(t *testing.T) {
		locker, s := setupLocker(t)
		ctx := context.Background()
		lock, err := locker.Acquire(ctx, "tenantflow:trigger:v1", time.Minute)
		require.NoError(t, err)
		assert.True(t, s.Exists("tenantflow:trigger:v1"))

		_, err = locker.Acquire(ctx, "tenantflow:trigger:v1", time.Minute)
		assert.ErrorIs(t, err, trigger.ErrLocked)

		require.NoError(t, lock.Release(ctx))
		assert.False(t, s.Exists("tenantflow:trigger:v1"))
		again, err := locker.Acquire(ctx, "tenantflow:trigger:v1", time.Minute)
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})
	t.Run("Should keep keys of different tenants apart", func(t *testing.T) {
		locker, _ := setupLocker(t)
		ctx := context.Background()
		a, err := locker.Acquire(ctx, "tenantflow:trigger:v1", time.Minute)
		require.NoError(t, err)
		b, err := locker.Acquire(ctx, "tenantflow:trigger:v2", time.Minute)
		require.NoError(t, err)
		assert.NoError(t, a.Release(ctx))
		assert.NoError(t, b.Release(ctx))
	})
	t.Run("Should not delete a lock taken over after expiry", func(t *testing.T) {
		locker, s := setupLocker(t)
		ctx := context.Background()
		stale, err := locker.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)
		s.FastForward(2 * time.Second)
		fresh, err := locker.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, stale.Release(ctx), ErrLockLost)
		assert.True(t, s.Exists("k"))
		assert.NoError(t, fresh.Release(ctx))
	})
	t.Run("Should store the token string as the lock value", func(t *testing.T) {
		locker, s := setupLocker(t)
		ctx := context.Background()
		lock, err := locker.Acquire(ctx, "tenantflow:trigger:v1", time.Minute)
		require.NoError(t, err)
		held, ok := lock.(*redisLock)
		require.True(t, ok)
		value, err := s.Get("tenantflow:trigger:v1")
		require.NoError(t, err)
		assert.NotEmpty(t, value)
		assert.Equal(t, held.token, value)
		assert.InDelta(t, time.Minute.Seconds(), s.TTL("tenantflow:trigger:v1").Seconds(), 1)
		require.NoError(t, lock.Release(ctx))
	})
	t.Run("Should reject a non-positive ttl", func(t *testing.T) {
		locker, _ := setupLocker(t)
		_, err := locker.Acquire(context.Background(), "k", 0)
		assert.Error(t, err)
	})
}
