package cache

import (
	"context"
	"errors"
	"time"

	"halonet-payments/internal/apperrors"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived distributed locks keyed by resource.
type Locker struct{ c *redislock.Client }

func NewLocker(rdb *redis.Client) *Locker { return &Locker{c: redislock.New(rdb)} }

// Obtain fails fast with ErrConflict when another holder has the key.
func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.c.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperrors.Wrap(apperrors.ErrConflict, "%s is locked by another operation", key)
	}
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}
