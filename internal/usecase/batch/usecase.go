package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/company"
	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/domain/uow"
	"halonet-payments/internal/infrastructure/logging"
	"halonet-payments/internal/usecase/risk"
	"halonet-payments/pkg/aba"
	"halonet-payments/pkg/id"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Screener supplies the rule snapshot used to decide whether a draft needs approval.
type Screener interface {
	Snapshot(ctx context.Context, companyID string) (*risk.Snapshot, error)
}

type Usecase struct {
	uow       uow.UnitOfWork
	batches   domain.Repository
	entries   domain.EntryRepository
	settings  company.Repository
	screener  Screener
	publisher events.Publisher
	now       func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, batches domain.Repository, entries domain.EntryRepository,
	settings company.Repository, screener Screener, p events.Publisher) *Usecase {
	if p == nil {
		p = events.Nop{}
	}
	return &Usecase{
		uow: tx, batches: batches, entries: entries, settings: settings, screener: screener, publisher: p,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (u *Usecase) CreateBatch(ctx context.Context, in CreateBatchInput) (*BatchDTO, error) {
	ve := &apperrors.ValidationError{}
	if in.CompanyID == "" {
		ve.Add(-1, "company_id is required")
	}
	if in.Type == "" {
		in.Type = domain.TypePayroll
	}
	if !in.Type.Valid() {
		ve.Add(-1, fmt.Sprintf("unknown batch type %q", in.Type))
	}
	if in.EffectiveDate.IsZero() {
		ve.Add(-1, "effective_date is required")
	}
	if len(in.Entries) == 0 {
		ve.Add(-1, "at least one entry is required")
	}
	for i, e := range in.Entries {
		validateEntry(ve, i, e)
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return u.create(ctx, in)
}

// CreateBatchFromCalculation turns a pay run into one salary credit per employee
// followed by that employee's garnishment debits in ascending priority.
func (u *Usecase) CreateBatchFromCalculation(ctx context.Context, req CalculationRequest) (*BatchDTO, error) {
	ve := &apperrors.ValidationError{}
	if req.CompanyID == "" {
		ve.Add(-1, "company_id is required")
	}
	if len(req.Results) == 0 {
		ve.Add(-1, "calculation has no employee results")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	settings, err := u.settings.Get(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}

	var (
		entries []EntryInput
		short   []string
	)
	for ri, r := range req.Results {
		if r.NetPay.IsNegative() {
			ve.Add(-1, fmt.Sprintf("result %d (%s): net_pay is negative", ri, r.EmployeeID))
			continue
		}
		orders := sortOrders(r.Garnishments)
		alloc := allocate(r.NetPay, orders, settings.GarnishmentPolicy)
		withheld := decimal.Zero
		for _, a := range alloc {
			withheld = withheld.Add(a)
		}
		if net := r.NetPay.Sub(withheld); net.IsPositive() {
			entries = append(entries, EntryInput{
				EmployeeID:      r.EmployeeID,
				RecipientName:   r.EmployeeName,
				AccountNumber:   r.BankAccount.AccountNumber,
				RoutingNumber:   r.BankAccount.RoutingNumber,
				AccountType:     r.BankAccount.AccountType,
				Amount:          net,
				TransactionType: domain.TxCredit,
				PaymentType:     domain.PaymentSalary,
			})
		}
		for oi, o := range orders {
			if alloc[oi].LessThan(o.Amount) {
				short = append(short, fmt.Sprintf("%s:%s", r.EmployeeID, o.CourtOrderNumber))
			}
			if !alloc[oi].IsPositive() {
				continue
			}
			prio := o.Priority
			entries = append(entries, EntryInput{
				EmployeeID:          r.EmployeeID,
				RecipientName:       o.PayeeName,
				AccountNumber:       o.BankAccount.AccountNumber,
				RoutingNumber:       o.BankAccount.RoutingNumber,
				AccountType:         o.BankAccount.AccountType,
				Amount:              alloc[oi],
				TransactionType:     domain.TxDebit,
				PaymentType:         o.PaymentType,
				GarnishmentPriority: &prio,
				CourtOrderNumber:    o.CourtOrderNumber,
			})
		}
	}
	if len(entries) == 0 {
		ve.Add(-1, "calculation produced no payable entries")
	}
	for i, e := range entries {
		validateEntry(ve, i, e)
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	meta := map[string]any{
		"source":             "calculation",
		"employee_count":     len(req.Results),
		"garnishment_policy": string(settings.GarnishmentPolicy),
	}
	if req.RunID != "" {
		meta["calculation_run_id"] = req.RunID
	}
	if len(short) > 0 {
		meta["garnishments_short_paid"] = short
	}
	return u.create(ctx, CreateBatchInput{
		CompanyID:     req.CompanyID,
		Type:          req.Type,
		EffectiveDate: req.EffectiveDate,
		CreatedBy:     req.CreatedBy,
		Metadata:      meta,
		Entries:       entries,
	})
}

func (u *Usecase) create(ctx context.Context, in CreateBatchInput) (*BatchDTO, error) {
	if in.Type == "" {
		in.Type = domain.TypePayroll
	}
	eff := in.EffectiveDate.UTC().Truncate(24 * time.Hour)
	b := &domain.Batch{
		BatchID:          id.NewID32(),
		CompanyID:        in.CompanyID,
		BatchNumber:      id.NewBatchNumber(eff),
		Type:             in.Type,
		EffectiveDate:    eff,
		Status:           domain.StatusDraft,
		SubmissionStatus: domain.SubmissionNotSubmitted,
		IdempotencyKey:   id.NewID32(),
		Metadata:         datatypes.JSONMap(in.Metadata),
		CreatedBy:        in.CreatedBy,
		Version:          1,
	}
	entries := make([]domain.Entry, len(in.Entries))
	for i, ei := range in.Entries {
		entries[i] = newEntry(ei, i+1)
	}
	b.Recompute(entries)

	snap, err := u.screener.Snapshot(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := setApprovalRequirement(snap, b, entries); err != nil {
		return nil, err
	}

	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Batches.Create(ctx, b); err != nil {
			return err
		}
		for i := range entries {
			entries[i].BatchID = b.ID
		}
		return r.Entries.CreateMany(ctx, entries)
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]any{
		"batch_id": b.BatchID, "company_id": b.CompanyID, "entries": b.TotalCount, "total": b.TotalAmount.StringFixed(2),
	}).Info("batch: created")
	u.publish(ctx, b, "insert")
	return toDTO(b, entries), nil
}

func (u *Usecase) AddEntry(ctx context.Context, batchID string, in EntryInput) (*BatchDTO, error) {
	ve := &apperrors.ValidationError{}
	validateEntry(ve, -1, in)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return u.mutateDraft(ctx, batchID, func(r uow.Repos, b *domain.Batch, entries []domain.Entry) ([]domain.Entry, error) {
		seq := 0
		for _, e := range entries {
			seq = max(seq, e.Sequence)
		}
		e := newEntry(in, seq+1)
		e.BatchID = b.ID
		if err := r.Entries.Create(ctx, &e); err != nil {
			return nil, err
		}
		return append(entries, e), nil
	})
}

func (u *Usecase) RemoveEntry(ctx context.Context, batchID, entryID string) (*BatchDTO, error) {
	return u.mutateDraft(ctx, batchID, func(r uow.Repos, b *domain.Batch, entries []domain.Entry) ([]domain.Entry, error) {
		for i := range entries {
			if entries[i].EntryID != entryID {
				continue
			}
			if err := r.Entries.Delete(ctx, &entries[i]); err != nil {
				return nil, err
			}
			return append(entries[:i:i], entries[i+1:]...), nil
		}
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "entry %s is not in batch %s", entryID, batchID)
	})
}

// mutateDraft applies an entry edit and the recomputed aggregates in one
// transaction under the batch row lock.
func (u *Usecase) mutateDraft(ctx context.Context, batchID string,
	edit func(r uow.Repos, b *domain.Batch, entries []domain.Entry) ([]domain.Entry, error)) (*BatchDTO, error) {
	pre, err := u.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	snap, err := u.screener.Snapshot(ctx, pre.CompanyID)
	if err != nil {
		return nil, err
	}

	var dto *BatchDTO
	err = u.uow.WithinBatchTx(ctx, batchID, func(r uow.Repos, b *domain.Batch) error {
		if !b.IsDraft() {
			return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s is %s; entries can only change in draft", b.BatchID, b.Status)
		}
		if !b.Editable() {
			return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s has a submission in flight", b.BatchID)
		}
		entries, err := r.Entries.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		if entries, err = edit(r, b, entries); err != nil {
			return err
		}
		b.Recompute(entries)
		b.ResetRisk()
		if err := setApprovalRequirement(snap, b, entries); err != nil {
			return err
		}
		if err := r.Batches.Update(ctx, b); err != nil {
			return err
		}
		dto = toDTO(b, entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.publish(ctx, &dto.Batch, "update")
	return dto, nil
}

// GetBatch reports absence as (nil, false, nil).
func (u *Usecase) GetBatch(ctx context.Context, batchID string) (*BatchDTO, bool, error) {
	b, err := u.batches.GetByBatchID(ctx, batchID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entries, err := u.entries.ListByBatch(ctx, b.ID)
	if err != nil {
		return nil, false, err
	}
	return toDTO(b, entries), true, nil
}

// ListBatches returns batches with entry outcome counts but without the entries.
func (u *Usecase) ListBatches(ctx context.Context, companyID string, status domain.Status) ([]*BatchDTO, error) {
	list, err := u.batches.ListByCompany(ctx, companyID, status)
	if err != nil {
		return nil, err
	}
	out := make([]*BatchDTO, 0, len(list))
	for i := range list {
		entries, err := u.entries.ListByBatch(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		dto := toDTO(&list[i], entries)
		dto.Entries = nil
		out = append(out, dto)
	}
	return out, nil
}

// Cancel stops a batch that has not reached a provider and voids its entries.
func (u *Usecase) Cancel(ctx context.Context, batchID, reason string) (*BatchDTO, error) {
	if reason == "" {
		reason = "batch cancelled"
	}
	var dto *BatchDTO
	err := u.uow.WithinBatchTx(ctx, batchID, func(r uow.Repos, b *domain.Batch) error {
		if b.SubmissionStatus == domain.SubmissionPending {
			return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s has a submission in flight", b.BatchID)
		}
		if err := b.Advance(domain.StatusCancelled); err != nil {
			return err
		}
		entries, err := r.Entries.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		for i := range entries {
			if entries[i].Status.Terminal() {
				continue
			}
			if err := entries[i].Transition(domain.EntryVoided); err != nil {
				return err
			}
			entries[i].VoidReason = reason
			if err := r.Entries.Save(ctx, &entries[i]); err != nil {
				return err
			}
		}
		if err := r.Batches.Update(ctx, b); err != nil {
			return err
		}
		dto = toDTO(b, entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.publish(ctx, &dto.Batch, "update")
	return dto, nil
}

func (u *Usecase) publish(ctx context.Context, b *domain.Batch, kind string) {
	u.publisher.Publish(ctx, events.Change{
		CompanyID: b.CompanyID, Table: "payment_batches", Kind: kind, ID: b.BatchID, Status: string(b.Status), At: u.now(),
	})
}

func setApprovalRequirement(snap *risk.Snapshot, b *domain.Batch, entries []domain.Entry) error {
	required, err := snap.RequiresApproval(b, entries)
	if err != nil {
		return err
	}
	b.RequiresApproval = required
	if required {
		b.ApprovalStatus = domain.ApprovalPending
	} else {
		b.ApprovalStatus = domain.ApprovalNotRequired
	}
	return nil
}

func newEntry(in EntryInput, seq int) domain.Entry {
	return domain.Entry{
		EntryID:             id.NewID32(),
		Sequence:            seq,
		EmployeeID:          in.EmployeeID,
		RecipientName:       in.RecipientName,
		AccountNumber:       in.AccountNumber,
		AccountMask:         domain.MaskAccount(in.AccountNumber),
		RoutingNumber:       in.RoutingNumber,
		AccountType:         in.AccountType,
		Amount:              in.Amount,
		Currency:            "USD",
		TransactionType:     in.TransactionType,
		PaymentType:         in.PaymentType,
		GarnishmentPriority: in.GarnishmentPriority,
		CourtOrderNumber:    in.CourtOrderNumber,
		Status:              domain.EntryPending,
	}
}

func validateEntry(ve *apperrors.ValidationError, i int, e EntryInput) {
	if !e.Amount.IsPositive() {
		ve.Add(i, "amount must be positive")
	}
	if e.Amount.Exponent() < -2 && !e.Amount.Equal(e.Amount.Round(2)) {
		ve.Add(i, "amount has more than two decimal places")
	}
	if e.RecipientName == "" {
		ve.Add(i, "recipient_name is required")
	}
	if !aba.ValidRouting(e.RoutingNumber) {
		ve.Add(i, "routing_number fails the ABA checksum")
	}
	if !aba.ValidAccount(e.AccountNumber) {
		ve.Add(i, "account_number must be 4-17 digits")
	}
	if e.AccountType != domain.AccountChecking && e.AccountType != domain.AccountSavings {
		ve.Add(i, fmt.Sprintf("unknown account_type %q", e.AccountType))
	}
	if e.TransactionType != domain.TxCredit && e.TransactionType != domain.TxDebit {
		ve.Add(i, fmt.Sprintf("unknown transaction_type %q", e.TransactionType))
	}
	if !e.PaymentType.Valid() {
		ve.Add(i, fmt.Sprintf("unknown payment_type %q", e.PaymentType))
	} else if e.PaymentType.Garnishment() && e.GarnishmentPriority == nil {
		ve.Add(i, "garnishment entries require garnishment_priority")
	}
}
