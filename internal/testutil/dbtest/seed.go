package dbtest

import (
	"context"
	"testing"
	"time"

	"halonet-payments/internal/domain/batch"
	"halonet-payments/pkg/id"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Credit is a valid checking-account salary entry.
func Credit(amount string) batch.Entry {
	return batch.Entry{
		RecipientName:   "Jane Doe",
		EmployeeID:      "emp-1",
		AccountNumber:   "000123456789",
		RoutingNumber:   "021000021",
		AccountType:     batch.AccountChecking,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "USD",
		TransactionType: batch.TxCredit,
		PaymentType:     batch.PaymentSalary,
	}
}

// Garnishment is a savings-account debit with the given priority.
func Garnishment(amount string, priority int) batch.Entry {
	e := Credit(amount)
	e.RecipientName = "County Court"
	e.RoutingNumber = "011000015"
	e.AccountNumber = "987654321"
	e.AccountType = batch.AccountSavings
	e.TransactionType = batch.TxDebit
	e.PaymentType = batch.PaymentGarnishment
	e.GarnishmentPriority = &priority
	return e
}

// SeedBatch writes a batch in the given status together with its entries.
func SeedBatch(t *testing.T, db *gorm.DB, companyID string, status batch.Status, entries ...batch.Entry) (*batch.Batch, []batch.Entry) {
	t.Helper()
	eff := time.Now().UTC().AddDate(0, 0, 5).Truncate(24 * time.Hour)
	b := &batch.Batch{
		BatchID:          id.NewID32(),
		CompanyID:        companyID,
		BatchNumber:      id.NewBatchNumber(eff),
		Type:             batch.TypePayroll,
		EffectiveDate:    eff,
		Status:           status,
		ApprovalStatus:   batch.ApprovalNotRequired,
		SubmissionStatus: batch.SubmissionNotSubmitted,
		IdempotencyKey:   id.NewID32(),
		Version:          1,
	}
	b.Recompute(entries)
	ctx := context.Background()
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	out := make([]batch.Entry, len(entries))
	for i, e := range entries {
		e.EntryID = id.NewID32()
		e.BatchID = b.ID
		e.Sequence = i + 1
		e.AccountMask = batch.MaskAccount(e.AccountNumber)
		if e.Status == "" {
			e.Status = batch.EntryPending
		}
		if err := db.WithContext(ctx).Create(&e).Error; err != nil {
			t.Fatalf("seed entry: %v", err)
		}
		out[i] = e
	}
	return b, out
}
