package webhook

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Provider callback event types.
const (
	EventPaymentProcessing = "payment.processing"
	EventPaymentCompleted  = "payment.completed"
	EventPaymentReturned   = "payment.returned"
	EventPaymentFailed     = "payment.failed"
)

// Table: webhook_endpoints
type Endpoint struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	EndpointID string         `gorm:"column:endpoint_id;type:char(32);not null;uniqueIndex:ux_webhook_endpoints_endpoint_id" json:"endpoint_id"`
	CompanyID  string         `gorm:"column:company_id;size:64;not null;index" json:"company_id"`
	WebhookURL string         `gorm:"column:webhook_url;type:text;not null" json:"webhook_url"`
	EventTypes datatypes.JSON `gorm:"column:event_types" json:"event_types"`
	Secret     string         `gorm:"column:secret_sealed;type:text;serializer:sealed" json:"-"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Endpoint) TableName() string { return "webhook_endpoints" }

func (e *Endpoint) Accepts(eventType string) bool {
	var types []string
	_ = json.Unmarshal(e.EventTypes, &types)
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == eventType {
			return true
		}
	}
	return false
}

func (e *Endpoint) SetEventTypes(types []string) {
	b, _ := json.Marshal(types)
	e.EventTypes = datatypes.JSON(b)
}

type Repository interface {
	Create(ctx context.Context, e *Endpoint) error
	GetByEndpointID(ctx context.Context, endpointID string) (*Endpoint, error)
}
