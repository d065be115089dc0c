package batch

import (
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/risk"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Type string

const (
	TypePayroll     Type = "payroll"
	TypeGarnishment Type = "garnishment"
	TypeBonus       Type = "bonus"
	TypeCorrection  Type = "correction"
)

func (t Type) Valid() bool {
	switch t {
	case TypePayroll, TypeGarnishment, TypeBonus, TypeCorrection:
		return true
	}
	return false
}

type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusSubmitted       Status = "submitted"
	StatusProcessing      Status = "processing"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

func (s Status) rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusPendingApproval:
		return 1
	case StatusApproved:
		return 2
	case StatusSubmitted:
		return 3
	case StatusProcessing:
		return 4
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 5
	}
	return -1
}

func (s Status) Valid() bool    { return s.rank() >= 0 }
func (s Status) Terminal() bool { return s.rank() == 5 }

// SubmittedOrBeyond reports whether the batch has been handed to a provider.
func (s Status) SubmittedOrBeyond() bool {
	return s.rank() >= StatusSubmitted.rank() && s != StatusCancelled
}

type ApprovalStatus string

const (
	ApprovalNotRequired ApprovalStatus = "not_required"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
	ApprovalExpired     ApprovalStatus = "expired"
)

type SubmissionStatus string

const (
	SubmissionNotSubmitted SubmissionStatus = "not_submitted"
	SubmissionPending      SubmissionStatus = "pending"
	SubmissionSubmitted    SubmissionStatus = "submitted"
	SubmissionFailed       SubmissionStatus = "failed"
)

// Table: payment_batches
type Batch struct {
	ID                      uint64            `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	BatchID                 string            `gorm:"column:batch_id;type:char(32);not null;uniqueIndex:ux_payment_batches_batch_id" json:"batch_id"`
	CompanyID               string            `gorm:"column:company_id;size:64;not null;index:idx_payment_batches_company_created" json:"company_id"`
	BatchNumber             string            `gorm:"column:batch_number;size:32;not null;uniqueIndex:ux_payment_batches_number" json:"batch_number"`
	Type                    Type              `gorm:"column:batch_type;size:16;not null" json:"batch_type"`
	EffectiveDate           time.Time         `gorm:"column:effective_date;type:date;not null" json:"effective_date"`
	TotalAmount             decimal.Decimal   `gorm:"column:total_amount;type:decimal(18,2);not null" json:"total_amount"`
	TotalCount              int               `gorm:"column:total_count;not null" json:"total_count"`
	CreditAmount            decimal.Decimal   `gorm:"column:credit_amount;type:decimal(18,2);not null" json:"credit_amount"`
	DebitAmount             decimal.Decimal   `gorm:"column:debit_amount;type:decimal(18,2);not null" json:"debit_amount"`
	Status                  Status            `gorm:"column:status;size:24;not null;index" json:"status"`
	ApprovalStatus          ApprovalStatus    `gorm:"column:approval_status;size:16;not null" json:"approval_status"`
	SubmissionStatus        SubmissionStatus  `gorm:"column:submission_status;size:16;not null" json:"submission_status"`
	RequiresApproval        bool              `gorm:"column:requires_approval;not null" json:"requires_approval"`
	RiskAction              risk.Action       `gorm:"column:risk_action;size:16" json:"risk_action,omitempty"`
	RiskBlockedBy           string            `gorm:"column:risk_blocked_by;size:128" json:"risk_blocked_by,omitempty"`
	RiskEvaluatedAt         *time.Time        `gorm:"column:risk_evaluated_at" json:"risk_evaluated_at,omitempty"`
	RiskHoldUntil           *time.Time        `gorm:"column:risk_hold_until" json:"risk_hold_until,omitempty"`
	ProviderID              string            `gorm:"column:provider_id;size:64" json:"provider_id,omitempty"`
	ProviderBatchID         string            `gorm:"column:provider_batch_id;size:128" json:"provider_batch_id,omitempty"`
	ConfirmationNumber      string            `gorm:"column:confirmation_number;size:128" json:"confirmation_number,omitempty"`
	EstimatedSettlementDate *time.Time        `gorm:"column:estimated_settlement_date;type:date" json:"estimated_settlement_date,omitempty"`
	IdempotencyKey          string            `gorm:"column:idempotency_key;size:64;not null;uniqueIndex:ux_payment_batches_idempotency" json:"idempotency_key"`
	SubmissionAttempts      int               `gorm:"column:submission_attempts;not null;default:0" json:"submission_attempts"`
	LastSubmissionError     string            `gorm:"column:last_submission_error;type:text" json:"last_submission_error,omitempty"`
	SubmittedAt             *time.Time        `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	NachaContent            string            `gorm:"column:nacha_content;type:text" json:"-"`
	NachaContentHash        string            `gorm:"column:nacha_content_hash;size:64" json:"nacha_content_hash,omitempty"`
	NachaEntryHash          string            `gorm:"column:nacha_entry_hash;size:10" json:"nacha_entry_hash,omitempty"`
	Metadata                datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	Version                 uint64            `gorm:"column:version;not null;default:1" json:"version"`
	CreatedBy               string            `gorm:"column:created_by;size:64" json:"created_by,omitempty"`
	CreatedAt               time.Time         `gorm:"column:created_at;autoCreateTime;index:idx_payment_batches_company_created" json:"created_at"`
	UpdatedAt               time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Batch) TableName() string { return "payment_batches" }

// Advance moves the batch forward. Status never regresses and terminal states are final.
func (b *Batch) Advance(next Status) error {
	if b.Status == next {
		return nil
	}
	if b.Status.Terminal() || next.rank() <= b.Status.rank() {
		return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s cannot move from %s to %s", b.BatchID, b.Status, next)
	}
	if next == StatusCancelled && b.Status.SubmittedOrBeyond() {
		return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s already submitted", b.BatchID)
	}
	b.Status = next
	return nil
}

func (b *Batch) IsDraft() bool { return b.Status == StatusDraft }

// Editable reports whether entries may still change. A draft whose
// submission is in flight is already in the provider's hands.
func (b *Batch) Editable() bool {
	return b.IsDraft() && b.SubmissionStatus != SubmissionPending
}

// ApprovalSatisfied is true when no approval is needed or it has been granted.
func (b *Batch) ApprovalSatisfied() bool {
	return !b.RequiresApproval || b.ApprovalStatus == ApprovalApproved
}

// Recompute derives aggregates from the full entry set.
func (b *Batch) Recompute(entries []Entry) {
	credit, debit := decimal.Zero, decimal.Zero
	for i := range entries {
		if entries[i].TransactionType == TxDebit {
			debit = debit.Add(entries[i].Amount)
		} else {
			credit = credit.Add(entries[i].Amount)
		}
	}
	b.CreditAmount = credit
	b.DebitAmount = debit
	b.TotalAmount = credit.Add(debit)
	b.TotalCount = len(entries)
}

// ResetRisk drops any previous evaluation; entry edits make it stale.
func (b *Batch) ResetRisk() {
	b.RiskAction = ""
	b.RiskBlockedBy = ""
	b.RiskEvaluatedAt = nil
	b.RiskHoldUntil = nil
}
