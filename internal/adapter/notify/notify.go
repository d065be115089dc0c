// Package notify delivers operator notifications. Every sink swallows its
// own errors so a broken channel never fails a payment operation.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/infrastructure/logging"

	"cloud.google.com/go/pubsub"
)

// Log writes notifications to the request logger. Payloads are left out;
// they can carry recipient data.
type Log struct{}

func (Log) Notify(ctx context.Context, n events.Notification) {
	logging.FromContext(ctx).WithFields(map[string]any{
		"kind":       n.Kind,
		"company_id": n.CompanyID,
		"recipients": n.Recipients,
	}).Info("notify: " + n.Subject)
}

// PubSub publishes each notification as JSON with kind and company_id
// attributes so subscribers can filter server side. A notification's Secret
// goes only to the direct topic, one message per recipient.
type PubSub struct {
	topic   *pubsub.Topic
	direct  *pubsub.Topic
	timeout time.Duration
}

// NewPubSub drops secrets when direct is nil.
func NewPubSub(t, direct *pubsub.Topic) *PubSub {
	return &PubSub{topic: t, direct: direct, timeout: 10 * time.Second}
}

type delivery struct {
	Kind      string         `json:"kind"`
	CompanyID string         `json:"company_id"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload,omitempty"`
	Secret    string         `json:"secret"`
	At        time.Time      `json:"at"`
}

func (p *PubSub) Notify(ctx context.Context, n events.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	p.publish(ctx, p.topic, n.Kind, n, map[string]string{"kind": n.Kind, "company_id": n.CompanyID})

	if n.Secret == "" {
		return
	}
	if p.direct == nil {
		logging.FromContext(ctx).WithField("kind", n.Kind).Warn("notify: no direct topic, secret dropped")
		return
	}
	for _, r := range n.Recipients {
		p.publish(ctx, p.direct, n.Kind, delivery{
			Kind: n.Kind, CompanyID: n.CompanyID, Recipient: r, Payload: n.Payload, Secret: n.Secret, At: n.At,
		}, map[string]string{"kind": n.Kind, "company_id": n.CompanyID, "recipient": r})
	}
}

func (p *PubSub) publish(ctx context.Context, t *pubsub.Topic, kind string, v any, attrs map[string]string) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.LogError(ctx, "notify", "PubSub.Notify", "marshal notification", kind, err)
		return
	}
	res := t.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := res.Get(ctx); err != nil {
		logging.LogError(ctx, "notify", "PubSub.Notify", "publish notification", kind, err)
	}
}

// Multi fans a notification out to every sink in order.
type Multi []events.Notifier

func (m Multi) Notify(ctx context.Context, n events.Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}
