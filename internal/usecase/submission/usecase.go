package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/company"
	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/domain/risk"
	"halonet-payments/internal/domain/uow"
	"halonet-payments/internal/infrastructure/logging"
	"halonet-payments/pkg/aba"
	"halonet-payments/pkg/nacha"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("halonet-payments/submission")

type Usecase struct {
	uow       uow.UnitOfWork
	batches   batch.Repository
	entries   batch.EntryRepository
	settings  company.Repository
	providers map[string]Provider
	fallback  string
	locker    Locker
	archive   Archiver
	notifier  events.Notifier
	publisher events.Publisher
	opts      Options
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewUsecase: the first provider is used when neither the caller nor the
// company settings name one. archive may be nil.
func NewUsecase(tx uow.UnitOfWork, batches batch.Repository, entries batch.EntryRepository, settings company.Repository,
	providers []Provider, locker Locker, archive Archiver, n events.Notifier, p events.Publisher, opts Options) *Usecase {
	if n == nil {
		n = events.Nop{}
	}
	if p == nil {
		p = events.Nop{}
	}
	u := &Usecase{
		uow:       tx,
		batches:   batches,
		entries:   entries,
		settings:  settings,
		providers: make(map[string]Provider, len(providers)),
		locker:    locker,
		archive:   archive,
		notifier:  n,
		publisher: p,
		opts:      opts.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
	for _, pr := range providers {
		if u.fallback == "" {
			u.fallback = pr.ID()
		}
		u.providers[pr.ID()] = pr
	}
	return u
}

// Submit hands an approved, evaluated batch to a provider. The batch is marked
// pending and committed before the provider is called; the same idempotency
// key goes out on every retry and every later attempt.
func (u *Usecase) Submit(ctx context.Context, batchID, providerID string) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "submission.Submit", trace.WithAttributes(attribute.String("batch.id", batchID)))
	defer span.End()

	res, err := u.submit(ctx, span, batchID, providerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (u *Usecase) submit(ctx context.Context, span trace.Span, batchID, providerID string) (*SubmitResult, error) {
	release, err := u.locker.Obtain(ctx, "batch:"+batchID, u.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	pre, err := u.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	settings, err := u.settings.Get(ctx, pre.CompanyID)
	if err != nil {
		return nil, err
	}
	prov, err := u.provider(providerID, settings)
	if err != nil {
		return nil, err
	}

	now := u.now()
	var (
		req      SubmitRequest
		file     *nacha.File
		attempts int
	)
	err = u.uow.WithinBatchTx(ctx, batchID, func(r uow.Repos, b *batch.Batch) error {
		if err := u.ready(b, now); err != nil {
			return err
		}
		all, err := r.Entries.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		if err := revalidate(all); err != nil {
			return err
		}
		live := payable(all)
		file, err = render(b, live, settings, u.opts.ODFIRouting, u.opts.ODFIName)
		if err != nil {
			return err
		}
		for i := range live {
			if err := r.Entries.Save(ctx, &live[i]); err != nil {
				return err
			}
		}
		b.NachaContent = file.Content
		b.NachaContentHash = file.ContentHash
		b.NachaEntryHash = file.EntryHash
		b.SubmissionStatus = batch.SubmissionPending
		b.SubmissionAttempts++
		b.ProviderID = prov.ID()
		b.LastSubmissionError = ""
		if err := r.Batches.Update(ctx, b); err != nil {
			return err
		}
		attempts = b.SubmissionAttempts
		req = newRequest(b, live, file)
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provider.id", prov.ID()), attribute.Int("submission.attempt", attempts))

	logging.FromContext(ctx).WithFields(map[string]any{
		"batch_id": batchID, "provider_id": prov.ID(), "attempt": attempts, "entries": len(req.Payments),
	}).Info("submission: sending batch")
	u.store(ctx, pre, attempts, file)

	resp, callErr := u.call(ctx, prov, req)
	if callErr == nil && !resp.Accepted {
		callErr = &apperrors.ProviderError{Messages: resp.Errors}
	}
	return u.conclude(ctx, batchID, sentIDs(req.Payments), resp, callErr)
}

// Reconcile settles a submission left pending by a timeout, asking the
// provider what it did with the batch's idempotency key.
func (u *Usecase) Reconcile(ctx context.Context, batchID string) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "submission.Reconcile", trace.WithAttributes(attribute.String("batch.id", batchID)))
	defer span.End()

	release, err := u.locker.Obtain(ctx, "batch:"+batchID, u.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := u.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.SubmissionStatus != batch.SubmissionPending {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "batch %s has no submission in flight", batchID)
	}
	prov, ok := u.providers[b.ProviderID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrPrecondition, "provider %q is not configured", b.ProviderID)
	}

	cctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	resp, err := prov.Status(cctx, b.IdempotencyKey)
	cancel()
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return u.conclude(ctx, batchID, nil, nil, &apperrors.ProviderError{
			Retryable: true, Messages: []string{"provider has no record of the submission"},
		})
	case err != nil:
		span.RecordError(err)
		return nil, err
	case !resp.Accepted:
		return u.conclude(ctx, batchID, nil, resp, &apperrors.ProviderError{Messages: resp.Errors})
	}
	return u.conclude(ctx, batchID, nil, resp, nil)
}

// GenerateNACHA renders the file the batch would be sent as right now.
func (u *Usecase) GenerateNACHA(ctx context.Context, batchID string) (*NACHAFile, error) {
	b, err := u.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	entries, err := u.entries.ListByBatch(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	settings, err := u.settings.Get(ctx, b.CompanyID)
	if err != nil {
		return nil, err
	}
	f, err := render(b, payable(entries), settings, u.opts.ODFIRouting, u.opts.ODFIName)
	if err != nil {
		return nil, err
	}
	return toFile(b, f), nil
}

func (u *Usecase) provider(id string, s *company.Settings) (Provider, error) {
	if id == "" {
		id = s.DefaultProviderID
	}
	if id == "" {
		id = u.fallback
	}
	p, ok := u.providers[id]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "unknown provider %q", id)
	}
	return p, nil
}

func (u *Usecase) ready(b *batch.Batch, now time.Time) error {
	switch {
	case b.RiskAction == risk.ActionBlock:
		return apperrors.Wrap(apperrors.ErrPrecondition, "batch %s is blocked by risk control %q", b.BatchID, b.RiskBlockedBy)
	case b.SubmissionStatus == batch.SubmissionPending:
		return apperrors.Wrap(apperrors.ErrPrecondition, "batch %s has a submission in flight; reconcile it first", b.BatchID)
	case b.Status == batch.StatusCancelled || b.Status == batch.StatusFailed:
		return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s is %s", b.BatchID, b.Status)
	case b.Status.SubmittedOrBeyond() || b.SubmissionStatus == batch.SubmissionSubmitted:
		return apperrors.Wrap(apperrors.ErrPrecondition, "batch %s was already submitted", b.BatchID)
	case !b.ApprovalSatisfied():
		return apperrors.Wrap(apperrors.ErrPrecondition, "batch %s needs approval (approval is %s)", b.BatchID, b.ApprovalStatus)
	case b.RiskEvaluatedAt == nil:
		return apperrors.Wrap(apperrors.ErrPrecondition, "batch %s has not been risk evaluated", b.BatchID)
	case b.RiskHoldUntil != nil && now.Before(*b.RiskHoldUntil):
		return apperrors.Wrap(apperrors.ErrPrecondition, "batch %s is held until %s", b.BatchID, b.RiskHoldUntil.Format(time.RFC3339))
	case b.SubmissionAttempts >= u.opts.MaxAttempts:
		return apperrors.Wrap(apperrors.ErrPrecondition, "batch %s used all %d submission attempts", b.BatchID, u.opts.MaxAttempts)
	}
	return nil
}

// revalidate re-checks bank details of every entry that will be sent.
func revalidate(all []batch.Entry) error {
	ve := &apperrors.ValidationError{}
	for i, e := range all {
		if e.Status == batch.EntryVoided || e.Status == batch.EntryFailed {
			continue
		}
		if !aba.ValidRouting(e.RoutingNumber) {
			ve.Add(i, "routing number fails the ABA checksum")
		}
		if !aba.ValidAccount(e.AccountNumber) {
			ve.Add(i, "account number must be 4-17 digits")
		}
	}
	return ve.OrNil()
}

func newRequest(b *batch.Batch, live []batch.Entry, f *nacha.File) SubmitRequest {
	req := SubmitRequest{
		IdempotencyKey: b.IdempotencyKey,
		BatchID:        b.BatchID,
		BatchNumber:    b.BatchNumber,
		CompanyID:      b.CompanyID,
		EffectiveDate:  b.EffectiveDate,
		NACHA:          f.Content,
		Payments:       make([]Payment, 0, len(live)),
	}
	for _, e := range live {
		req.Payments = append(req.Payments, Payment{
			EntryID:         e.EntryID,
			TraceNumber:     e.TraceNumber,
			RecipientName:   e.RecipientName,
			RoutingNumber:   e.RoutingNumber,
			AccountNumber:   e.AccountNumber,
			AccountType:     e.AccountType,
			TransactionType: e.TransactionType,
			Amount:          e.Amount,
		})
	}
	return req
}

// call retries transport failures with exponential backoff. A timeout is
// returned at once: the provider may have the batch, so only Reconcile can tell.
func (u *Usecase) call(ctx context.Context, p Provider, req SubmitRequest) (*SubmitResponse, error) {
	var last *apperrors.ProviderError
	for attempt := 0; attempt <= u.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := u.sleep(ctx, u.opts.Backoff<<(attempt-1)); err != nil {
				return nil, &apperrors.ProviderError{Retryable: true, Err: err}
			}
		}
		cctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
		resp, err := p.Submit(cctx, req)
		timedOut := errors.Is(cctx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return resp, nil
		}
		pe := asProviderError(err, timedOut)
		if pe.Timeout || !pe.Retryable {
			return nil, pe
		}
		last = pe
		logging.FromContext(ctx).WithFields(map[string]any{
			"batch_id": req.BatchID, "retry": attempt, "error": pe.Error(),
		}).Warn("submission: provider transport failure")
	}
	return nil, last
}

func asProviderError(err error, timedOut bool) *apperrors.ProviderError {
	var pe *apperrors.ProviderError
	if !errors.As(err, &pe) {
		pe = &apperrors.ProviderError{Retryable: true, Err: err}
	}
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		pe.Timeout = true
	}
	return pe
}

// conclude records the provider outcome on the batch and its entries. sent
// holds the entry IDs that went out; nil means the batch's live entries,
// which cannot change while the submission is pending.
func (u *Usecase) conclude(ctx context.Context, batchID string, sent map[string]bool, resp *SubmitResponse, callErr error) (*SubmitResult, error) {
	var pe *apperrors.ProviderError
	if callErr != nil && !errors.As(callErr, &pe) {
		pe = &apperrors.ProviderError{Retryable: true, Err: callErr}
	}
	now := u.now()
	var (
		res             *SubmitResult
		companyID, name string
	)
	err := u.uow.WithinBatchTx(ctx, batchID, func(r uow.Repos, b *batch.Batch) error {
		companyID, name = b.CompanyID, b.BatchNumber
		if b.SubmissionStatus != batch.SubmissionPending {
			return apperrors.Wrap(apperrors.ErrConflict, "submission of batch %s was settled concurrently", batchID)
		}
		entries, err := r.Entries.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		var accepted, rejected int
		switch {
		case pe != nil && pe.Timeout:
			b.LastSubmissionError = pe.Error()
		case pe != nil && pe.Retryable:
			b.SubmissionStatus = batch.SubmissionFailed
			b.LastSubmissionError = pe.Error()
			if b.SubmissionAttempts >= u.opts.MaxAttempts {
				if rejected, err = failAll(ctx, r, b, entries, "submission attempts exhausted"); err != nil {
					return err
				}
			}
		case pe != nil:
			b.SubmissionStatus = batch.SubmissionFailed
			b.LastSubmissionError = pe.Error()
			if rejected, err = failAll(ctx, r, b, entries, clip("rejected by provider: "+pe.Error())); err != nil {
				return err
			}
		default:
			if sent == nil {
				sent = liveIDs(entries)
			}
			if accepted, rejected, err = accept(ctx, r, b, entries, sent, resp, now); err != nil {
				return err
			}
		}
		if err := r.Batches.Update(ctx, b); err != nil {
			return err
		}
		res = resultOf(b, accepted, rejected)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).WithFields(map[string]any{
		"batch_id": batchID, "status": res.Status, "submission_status": res.SubmissionStatus,
		"accepted": res.AcceptedEntries, "rejected": res.RejectedEntries,
	})
	if pe != nil {
		log.WithField("error", pe.Error()).Warn("submission: not accepted")
	} else {
		log.Info("submission: accepted")
	}

	u.publisher.Publish(ctx, events.Change{
		CompanyID: companyID, Table: "payment_batches", Kind: "update", ID: batchID, Status: string(res.Status), At: now,
	})
	if res.SubmissionStatus != batch.SubmissionPending {
		u.notifier.Notify(ctx, events.Notification{
			Kind:      "submission." + string(res.SubmissionStatus),
			CompanyID: companyID,
			Subject:   fmt.Sprintf("Payment batch %s %s", name, res.SubmissionStatus),
			Payload: map[string]any{
				"batch_id": batchID, "confirmation_number": res.ConfirmationNumber,
				"accepted_entries": res.AcceptedEntries, "rejected_entries": res.RejectedEntries,
			},
			At: now,
		})
	}
	if pe != nil {
		return res, pe
	}
	return res, nil
}

// accept settles the sent entries. An entry the response does not list was
// taken as a whole with the batch.
func accept(ctx context.Context, r uow.Repos, b *batch.Batch, entries []batch.Entry, sent map[string]bool, resp *SubmitResponse, now time.Time) (int, int, error) {
	results := make(map[string]PaymentResult, len(resp.Payments))
	for _, p := range resp.Payments {
		results[p.EntryID] = p
	}
	var accepted, rejected int
	for i := range entries {
		e := &entries[i]
		if e.Status != batch.EntryPending || !sent[e.EntryID] {
			continue
		}
		pr, listed := results[e.EntryID]
		if listed && !pr.Accepted {
			if err := e.Transition(batch.EntryFailed); err != nil {
				return 0, 0, err
			}
			e.FailureReason = clip(pr.Error)
			rejected++
		} else {
			if err := e.Transition(batch.EntrySubmitted); err != nil {
				return 0, 0, err
			}
			e.ProviderPaymentID = pr.ProviderPaymentID
			accepted++
		}
		if err := r.Entries.Save(ctx, e); err != nil {
			return 0, 0, err
		}
	}

	b.ProviderBatchID = resp.ProviderBatchID
	b.ConfirmationNumber = resp.ConfirmationNumber
	b.EstimatedSettlementDate = resp.EstimatedSettlement
	b.SubmittedAt = &now
	if accepted == 0 {
		b.SubmissionStatus = batch.SubmissionFailed
		b.LastSubmissionError = "provider rejected every entry"
		return 0, rejected, b.Advance(batch.StatusFailed)
	}
	b.SubmissionStatus = batch.SubmissionSubmitted
	return accepted, rejected, b.Advance(batch.StatusSubmitted)
}

func sentIDs(payments []Payment) map[string]bool {
	out := make(map[string]bool, len(payments))
	for _, p := range payments {
		out[p.EntryID] = true
	}
	return out
}

func liveIDs(entries []batch.Entry) map[string]bool {
	live := payable(entries)
	out := make(map[string]bool, len(live))
	for _, e := range live {
		out[e.EntryID] = true
	}
	return out
}

func failAll(ctx context.Context, r uow.Repos, b *batch.Batch, entries []batch.Entry, reason string) (int, error) {
	n := 0
	for i := range entries {
		e := &entries[i]
		if e.Status != batch.EntryPending {
			continue
		}
		if err := e.Transition(batch.EntryFailed); err != nil {
			return 0, err
		}
		e.FailureReason = reason
		if err := r.Entries.Save(ctx, e); err != nil {
			return 0, err
		}
		n++
	}
	return n, b.Advance(batch.StatusFailed)
}

func resultOf(b *batch.Batch, accepted, rejected int) *SubmitResult {
	return &SubmitResult{
		BatchID:                 b.BatchID,
		Status:                  b.Status,
		SubmissionStatus:        b.SubmissionStatus,
		ProviderID:              b.ProviderID,
		ProviderBatchID:         b.ProviderBatchID,
		ConfirmationNumber:      b.ConfirmationNumber,
		EstimatedSettlementDate: b.EstimatedSettlementDate,
		Attempts:                b.SubmissionAttempts,
		AcceptedEntries:         accepted,
		RejectedEntries:         rejected,
		NachaContentHash:        b.NachaContentHash,
	}
}

// store archives the rendered file; failures are logged and ignored.
func (u *Usecase) store(ctx context.Context, b *batch.Batch, attempt int, f *nacha.File) {
	if u.archive == nil {
		return
	}
	name := fmt.Sprintf("nacha/%s/%s-%d.ach", b.CompanyID, b.BatchNumber, attempt)
	if err := u.archive.Put(ctx, name, []byte(f.Content)); err != nil {
		logging.LogError(ctx, "submission", "store", "archive nacha file", name, err)
	}
}

// clip fits a message into the 255-char reason columns.
func clip(s string) string {
	if len(s) > 255 {
		return s[:255]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
