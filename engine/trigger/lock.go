package trigger

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned by Locker.Acquire when another holder owns the key.
var ErrLocked = errors.New("lock is held by another trigger")

// Lock is a held lease. Release is safe to call after expiry.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out short-lived exclusive leases keyed by name.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

const lockPrefix = "tenantflow:trigger:"

func lockKey(tenant string) string {
	return lockPrefix + tenant
}
