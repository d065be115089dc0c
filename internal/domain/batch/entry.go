package batch

import (
	"time"

	"halonet-payments/internal/apperrors"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxCredit TransactionType = "credit"
	TxDebit  TransactionType = "debit"
)

type PaymentType string

const (
	PaymentSalary       PaymentType = "salary"
	PaymentBonus        PaymentType = "bonus"
	PaymentGarnishment  PaymentType = "garnishment"
	PaymentChildSupport PaymentType = "child_support"
	PaymentTaxLevy      PaymentType = "tax_levy"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentSalary, PaymentBonus, PaymentGarnishment, PaymentChildSupport, PaymentTaxLevy:
		return true
	}
	return false
}

// Garnishment reports whether the payment is a legally mandated deduction.
func (p PaymentType) Garnishment() bool {
	return p == PaymentGarnishment || p == PaymentChildSupport || p == PaymentTaxLevy
}

type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
)

type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntrySubmitted  EntryStatus = "submitted"
	EntryProcessing EntryStatus = "processing"
	EntryCompleted  EntryStatus = "completed"
	EntryReturned   EntryStatus = "returned"
	EntryFailed     EntryStatus = "failed"
	EntryVoided     EntryStatus = "voided"
)

func (s EntryStatus) Terminal() bool {
	switch s {
	case EntryCompleted, EntryReturned, EntryFailed, EntryVoided:
		return true
	}
	return false
}

// allowed predecessors for each target state
var entryTransitions = map[EntryStatus][]EntryStatus{
	EntrySubmitted:  {EntryPending},
	EntryProcessing: {EntrySubmitted},
	EntryCompleted:  {EntrySubmitted, EntryProcessing},
	EntryReturned:   {EntrySubmitted, EntryProcessing},
	EntryFailed:     {EntryPending, EntrySubmitted, EntryProcessing},
	EntryVoided:     {EntryPending, EntrySubmitted, EntryProcessing},
}

// Table: payment_entries
type Entry struct {
	ID                  uint64              `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	EntryID             string              `gorm:"column:entry_id;type:char(32);not null;uniqueIndex:ux_payment_entries_entry_id" json:"entry_id"`
	BatchID             uint64              `gorm:"column:batch_id;not null;index:idx_payment_entries_batch_seq" json:"-"`
	Sequence            int                 `gorm:"column:sequence;not null;index:idx_payment_entries_batch_seq" json:"sequence"`
	EmployeeID          string              `gorm:"column:employee_id;size:64" json:"employee_id,omitempty"`
	RecipientName       string              `gorm:"column:recipient_name;size:128;not null" json:"recipient_name"`
	AccountNumber       string              `gorm:"column:account_number_sealed;type:text;serializer:sealed" json:"-"`
	AccountMask         string              `gorm:"column:account_mask;size:32" json:"account_mask"`
	RoutingNumber       string              `gorm:"column:routing_number;type:char(9);not null" json:"routing_number"`
	AccountType         AccountType         `gorm:"column:account_type;size:16;not null" json:"account_type"`
	Amount              decimal.Decimal     `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Currency            string              `gorm:"column:currency;size:3;not null;default:USD" json:"currency"`
	TransactionType     TransactionType     `gorm:"column:transaction_type;size:8;not null" json:"transaction_type"`
	PaymentType         PaymentType         `gorm:"column:payment_type;size:16;not null" json:"payment_type"`
	GarnishmentPriority *int                `gorm:"column:garnishment_priority" json:"garnishment_priority,omitempty"`
	CourtOrderNumber    string              `gorm:"column:court_order_number;size:64" json:"court_order_number,omitempty"`
	Status              EntryStatus         `gorm:"column:status;size:16;not null;index" json:"status"`
	TraceNumber         string              `gorm:"column:trace_number;size:15" json:"trace_number,omitempty"`
	ProviderPaymentID   string              `gorm:"column:provider_payment_id;size:128" json:"provider_payment_id,omitempty"`
	ReturnCode          string              `gorm:"column:return_code;size:4" json:"return_code,omitempty"`
	ReturnReason        string              `gorm:"column:return_reason;size:255" json:"return_reason,omitempty"`
	NSFFee              decimal.NullDecimal `gorm:"column:nsf_fee;type:decimal(18,2)" json:"nsf_fee,omitempty"`
	ReturnedAt          *time.Time          `gorm:"column:returned_at" json:"returned_at,omitempty"`
	VoidReason          string              `gorm:"column:void_reason;size:255" json:"void_reason,omitempty"`
	FailureReason       string              `gorm:"column:failure_reason;size:255" json:"failure_reason,omitempty"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Entry) TableName() string { return "payment_entries" }

// Transition applies an entry lifecycle move; voided overrides any non-terminal state.
func (e *Entry) Transition(next EntryStatus) error {
	if e.Status == next {
		return apperrors.Wrap(apperrors.ErrInvalidState, "entry %s already %s", e.EntryID, next)
	}
	for _, from := range entryTransitions[next] {
		if e.Status == from {
			e.Status = next
			return nil
		}
	}
	return apperrors.Wrap(apperrors.ErrInvalidState, "entry %s cannot move from %s to %s", e.EntryID, e.Status, next)
}

// MaskAccount keeps the last four digits.
func MaskAccount(acct string) string {
	if len(acct) <= 4 {
		return "****" + acct
	}
	return "****" + acct[len(acct)-4:]
}
