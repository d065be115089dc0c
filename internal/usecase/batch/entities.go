package batch

import (
	"time"

	domain "halonet-payments/internal/domain/batch"

	"github.com/shopspring/decimal"
)

type EntryInput struct {
	EmployeeID          string                 `json:"employee_id" validate:"max=64"`
	RecipientName       string                 `json:"recipient_name" validate:"required,max=128"`
	AccountNumber       string                 `json:"account_number" validate:"required,numeric,min=4,max=17"`
	RoutingNumber       string                 `json:"routing_number" validate:"routing"`
	AccountType         domain.AccountType     `json:"account_type" validate:"oneof=checking savings"`
	Amount              decimal.Decimal        `json:"amount" validate:"money"`
	TransactionType     domain.TransactionType `json:"transaction_type" validate:"oneof=credit debit"`
	PaymentType         domain.PaymentType     `json:"payment_type"`
	GarnishmentPriority *int                   `json:"garnishment_priority,omitempty"`
	CourtOrderNumber    string                 `json:"court_order_number,omitempty" validate:"max=64"`
}

type CreateBatchInput struct {
	CompanyID     string
	Type          domain.Type
	EffectiveDate time.Time
	CreatedBy     string
	Metadata      map[string]any
	Entries       []EntryInput
}

type BankAccount struct {
	AccountNumber string             `json:"account_number"`
	RoutingNumber string             `json:"routing_number"`
	AccountType   domain.AccountType `json:"account_type"`
}

// GarnishmentOrder is one court order or levy against an employee's net pay.
type GarnishmentOrder struct {
	PaymentType      domain.PaymentType `json:"payment_type"`
	PayeeName        string             `json:"payee_name"`
	Amount           decimal.Decimal    `json:"amount"`
	Priority         int                `json:"priority"`
	CourtOrderNumber string             `json:"court_order_number,omitempty"`
	BankAccount      BankAccount        `json:"bank_account"`
}

type EmployeeResult struct {
	EmployeeID   string             `json:"employee_id"`
	EmployeeName string             `json:"employee_name"`
	NetPay       decimal.Decimal    `json:"net_pay"`
	BankAccount  BankAccount        `json:"bank_account"`
	Garnishments []GarnishmentOrder `json:"garnishments,omitempty"`
}

// CalculationRequest is what the payroll engine hands over after a pay run.
type CalculationRequest struct {
	CompanyID     string
	Type          domain.Type
	EffectiveDate time.Time
	CreatedBy     string
	RunID         string
	Results       []EmployeeResult
}

type BatchDTO struct {
	domain.Batch
	Entries []domain.Entry             `json:"entries,omitempty"`
	Outcome map[domain.EntryStatus]int `json:"entry_outcomes"`
}

func toDTO(b *domain.Batch, entries []domain.Entry) *BatchDTO {
	dto := &BatchDTO{Batch: *b, Entries: entries, Outcome: map[domain.EntryStatus]int{}}
	for _, e := range entries {
		dto.Outcome[e.Status]++
	}
	return dto
}
