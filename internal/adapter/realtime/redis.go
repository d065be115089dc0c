package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/infrastructure/logging"

	"github.com/redis/go-redis/v9"
)

func channel(companyID string) string { return "changes:" + companyID }

// Redis shares the change stream across API replicas over Redis Pub/Sub.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) Publish(ctx context.Context, c events.Change) {
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := r.rdb.Publish(context.WithoutCancel(ctx), channel(c.CompanyID), b).Err(); err != nil {
		logging.LogError(ctx, "realtime", "Redis.Publish", "publish change", c.ID, err)
	}
}

func (r *Redis) Subscribe(ctx context.Context, companyID string) (<-chan events.Change, func()) {
	ps := r.rdb.Subscribe(ctx, channel(companyID))
	out := make(chan events.Change, bufferSize)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-stop:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var c events.Change
				if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()
	return out, cancel
}
