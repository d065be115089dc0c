package submission

import (
	"time"

	"halonet-payments/internal/domain/batch"

	"github.com/shopspring/decimal"
)

type Options struct {
	// Per provider call
	Timeout time.Duration
	// Transport retries within one Submit
	MaxRetries int
	// Submit calls allowed per batch before it is failed for good
	MaxAttempts int
	// First retry delay; doubles each time
	Backoff time.Duration
	LockTTL time.Duration

	ODFIRouting string
	ODFIName    string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.LockTTL <= 0 {
		o.LockTTL = o.Timeout*time.Duration(o.MaxRetries+1) + time.Minute
	}
	return o
}

type SubmitResult struct {
	BatchID                 string                 `json:"batch_id"`
	Status                  batch.Status           `json:"status"`
	SubmissionStatus        batch.SubmissionStatus `json:"submission_status"`
	ProviderID              string                 `json:"provider_id"`
	ProviderBatchID         string                 `json:"provider_batch_id,omitempty"`
	ConfirmationNumber      string                 `json:"confirmation_number,omitempty"`
	EstimatedSettlementDate *time.Time             `json:"estimated_settlement_date,omitempty"`
	Attempts                int                    `json:"submission_attempts"`
	AcceptedEntries         int                    `json:"accepted_entries"`
	RejectedEntries         int                    `json:"rejected_entries"`
	NachaContentHash        string                 `json:"nacha_content_hash,omitempty"`
}

type NACHAFile struct {
	BatchID     string          `json:"batch_id"`
	FileName    string          `json:"file_name"`
	Content     string          `json:"content"`
	ContentHash string          `json:"content_hash"`
	EntryHash   string          `json:"entry_hash"`
	EntryCount  int             `json:"entry_count"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

type ReturnInput struct {
	EntryID      string           `json:"-"`
	ReturnCode   string           `json:"return_code" validate:"required"`
	ReturnReason string           `json:"return_reason"`
	NSFFee       *decimal.Decimal `json:"nsf_fee,omitempty"`
	ReturnedAt   *time.Time       `json:"returned_at,omitempty"`
}

// ProviderEvent is an asynchronous status callback, already authenticated.
type ProviderEvent struct {
	CompanyID         string
	Type              string
	EntryID           string
	ProviderPaymentID string
	ReturnCode        string
	ReturnReason      string
	Reason            string
	OccurredAt        time.Time
}

type EntryDTO struct {
	batch.Entry
	BatchID string `json:"batch_id"`
}
