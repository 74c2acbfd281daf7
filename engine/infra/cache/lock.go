package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/compozy/tenantflow/engine/trigger"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisLocker implements trigger.Locker with SET NX PX and a token.
type RedisLocker struct {
	client RedisInterface
}

var _ trigger.Locker = (*RedisLocker)(nil)

func NewRedisLocker(client RedisInterface) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (trigger.Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	token, err := core.NewID()
	if err != nil {
		return nil, fmt.Errorf("generating lock token: %w", err)
	}
	ok, err := l.client.SetNX(ctx, key, token.String(), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, trigger.ErrLocked
	}
	return &redisLock{client: l.client, key: key, token: token.String()}, nil
}

type redisLock struct {
	client RedisInterface
	key    string
	token  string
}

// ErrLockLost is returned when the lease expired and another holder took it.
var ErrLockLost = errors.New("lock was lost before release")

func (l *redisLock) Release(ctx context.Context) error {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
