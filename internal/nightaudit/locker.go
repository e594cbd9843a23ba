package nightaudit

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

// Locker serialises audits of the same hotel and date across workers.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// RedisLocker implements Locker with bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker wraps a redislock client.
func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Obtain takes the lock once, without retrying. A held lock maps to ErrAuditInProgress.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrAuditInProgress
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}
