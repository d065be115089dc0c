package cache

import (
	"context"
	"fmt"
	"time"

	"halonet-payments/internal/infrastructure/logging"

	"github.com/redis/go-redis/v9"
)

// OpenRedis dials and pings once. The client backs idempotency records,
// 2FA codes, submission locks and the change feed, so timeouts stay short.
func OpenRedis(addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	logging.L().WithField("addr", addr).WithField("db", db).Info("redis: connected")
	return rdb, nil
}
