// Package twofactor stores approval one-time codes in Redis as bcrypt hashes.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"halonet-payments/pkg/id"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeDigits  = 6
	maxAttempts = 5
)

type RedisCodes struct {
	rdb  *redis.Client
	cost int
}

// NewRedisCodes uses bcrypt.DefaultCost when cost is zero.
func NewRedisCodes(rdb *redis.Client, cost int) *RedisCodes {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &RedisCodes{rdb: rdb, cost: cost}
}

func key(requestID, approverID string) string {
	return fmt.Sprintf("2fa:%s:%s", requestID, approverID)
}

// Issue replaces any outstanding code for the pair.
func (c *RedisCodes) Issue(ctx context.Context, requestID, approverID string, ttl time.Duration) (string, error) {
	code := id.NewDigits(codeDigits)
	hash, err := bcrypt.GenerateFromPassword([]byte(code), c.cost)
	if err != nil {
		return "", err
	}
	k := key(requestID, approverID)
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, "hash", string(hash), "attempts", 0)
		p.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks the code without spending it; callers Consume it once the
// decision it guards is stored. After maxAttempts misses the code is dead
// until a new one is issued.
func (c *RedisCodes) Verify(ctx context.Context, requestID, approverID, code string) (bool, error) {
	k := key(requestID, approverID)
	vals, err := c.rdb.HMGet(ctx, k, "hash", "attempts").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	hash, _ := vals[0].(string)
	if hash == "" {
		return false, nil
	}
	var attempts int
	if s, ok := vals[1].(string); ok {
		_, _ = fmt.Sscan(s, &attempts)
	}
	if attempts >= maxAttempts {
		return false, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		if err := c.rdb.HIncrBy(ctx, k, "attempts", 1).Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (c *RedisCodes) Consume(ctx context.Context, requestID, approverID string) error {
	return c.rdb.Del(ctx, key(requestID, approverID)).Err()
}
