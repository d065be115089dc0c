package webhook

import (
	"time"

	domain "halonet-payments/internal/domain/webhook"
)

type RegisterInput struct {
	CompanyID  string   `json:"-"`
	WebhookURL string   `json:"webhook_url" validate:"required,url"`
	EventTypes []string `json:"event_types" validate:"omitempty,dive,required"`
	// Secret is generated when empty.
	Secret string `json:"secret,omitempty" validate:"omitempty,min=16"`
}

// EndpointDTO carries the signing secret only in the response to Register.
type EndpointDTO struct {
	domain.Endpoint
	Secret string `json:"secret,omitempty"`
}

// Callback is the body a provider posts to a registered endpoint.
type Callback struct {
	Type              string    `json:"type"`
	EntryID           string    `json:"entry_id"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	ReturnCode        string    `json:"return_code"`
	ReturnReason      string    `json:"return_reason"`
	Reason            string    `json:"reason"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Delivery is a raw inbound request as received over HTTP.
type Delivery struct {
	EndpointID string
	Signature  string
	Timestamp  string
	Body       []byte
}
