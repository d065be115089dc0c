// Package events defines the outbound ports for dashboards and operators:
// a per-company change stream and a fire-and-forget notification sink.
package events

import (
	"context"
	"time"
)

// Change is one row-level change, scoped to a company.
type Change struct {
	CompanyID string    `json:"company_id"`
	Table     string    `json:"table"`
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, c Change)
}

// Feed lets a dashboard follow one company's changes until it calls the returned cancel func.
type Feed interface {
	Subscribe(ctx context.Context, companyID string) (<-chan Change, func())
}

type Notification struct {
	Kind       string         `json:"kind"`
	CompanyID  string         `json:"company_id"`
	Subject    string         `json:"subject"`
	Recipients []string       `json:"recipients,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
	// Secret reaches Recipients only, over a direct channel. It is never
	// serialized with the notification.
	Secret string `json:"-"`
}

// Notifier must not fail the caller; implementations log and drop on error.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Nop struct{}

func (Nop) Publish(context.Context, Change)      {}
func (Nop) Notify(context.Context, Notification) {}
