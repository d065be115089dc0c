package submission

import (
	"context"
	"time"

	"halonet-payments/internal/domain/batch"

	"github.com/shopspring/decimal"
)

// Payment is one entry as the provider sees it.
type Payment struct {
	EntryID         string                `json:"entry_id"`
	TraceNumber     string                `json:"trace_number"`
	RecipientName   string                `json:"recipient_name"`
	RoutingNumber   string                `json:"routing_number"`
	AccountNumber   string                `json:"account_number"`
	AccountType     batch.AccountType     `json:"account_type"`
	TransactionType batch.TransactionType `json:"transaction_type"`
	Amount          decimal.Decimal       `json:"amount"`
}

type SubmitRequest struct {
	IdempotencyKey string    `json:"idempotency_key"`
	BatchID        string    `json:"batch_id"`
	BatchNumber    string    `json:"batch_number"`
	CompanyID      string    `json:"company_id"`
	EffectiveDate  time.Time `json:"effective_date"`
	NACHA          string    `json:"nacha"`
	Payments       []Payment `json:"payments"`
}

type PaymentResult struct {
	EntryID           string `json:"entry_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Accepted          bool   `json:"accepted"`
	Error             string `json:"error,omitempty"`
}

// SubmitResponse is the provider's verdict. Accepted false means the whole
// batch was refused; otherwise Payments may still reject individual entries.
type SubmitResponse struct {
	Accepted            bool            `json:"accepted"`
	ProviderBatchID     string          `json:"provider_batch_id"`
	ConfirmationNumber  string          `json:"confirmation_number"`
	EstimatedSettlement *time.Time      `json:"estimated_settlement_date,omitempty"`
	Payments            []PaymentResult `json:"payments"`
	Errors              []string        `json:"errors,omitempty"`
}

// Provider submits ACH batches. Submit and Status return *apperrors.ProviderError
// for transport failures and rejections; Status returns apperrors.ErrNotFound
// when the provider never saw the idempotency key.
type Provider interface {
	ID() string
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	Status(ctx context.Context, idempotencyKey string) (*SubmitResponse, error)
}

// Voider is implemented by providers that can recall a submitted payment.
type Voider interface {
	Void(ctx context.Context, providerPaymentID, reason string) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Archiver keeps a copy of every rendered NACHA file.
type Archiver interface {
	Put(ctx context.Context, name string, content []byte) error
}
