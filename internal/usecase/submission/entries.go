package submission

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/domain/risk"
	"halonet-payments/internal/domain/uow"
	"halonet-payments/internal/domain/webhook"
	"halonet-payments/internal/infrastructure/logging"
	"halonet-payments/pkg/id"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var reReturnCode = regexp.MustCompile(`^R[0-9]{2}$`)

// entryChange mutates e under the batch lock. It reports false when there is
// nothing to write, which keeps replayed provider callbacks harmless.
type entryChange func(r uow.Repos, b *batch.Batch, e *batch.Entry) (bool, error)

// VoidPayment cancels an entry that has not settled. Entries already with the
// provider are recalled there first when the provider supports it.
func (u *Usecase) VoidPayment(ctx context.Context, entryID, reason string) (*EntryDTO, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "a void reason is required")
	}
	pre, owner, err := u.locate(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if pre.Status.Terminal() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "entry %s is %s", entryID, pre.Status)
	}
	if pre.ProviderPaymentID != "" {
		if v, ok := u.providers[owner.ProviderID].(Voider); ok {
			cctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
			err := v.Void(cctx, pre.ProviderPaymentID, reason)
			timedOut := cctx.Err() != nil
			cancel()
			if err != nil {
				return nil, asProviderError(err, timedOut)
			}
		}
	}

	out, err := u.onEntry(ctx, owner.BatchID, entryID, func(_ uow.Repos, _ *batch.Batch, e *batch.Entry) (bool, error) {
		if err := e.Transition(batch.EntryVoided); err != nil {
			return false, err
		}
		e.VoidReason = clip(reason)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	u.announce(ctx, owner, out, "entry.voided", map[string]any{"reason": reason})
	return out, nil
}

// ProcessReturn records an ACH return against a sent entry. Batch totals keep
// the original amounts.
func (u *Usecase) ProcessReturn(ctx context.Context, in ReturnInput) (*EntryDTO, error) {
	code := strings.ToUpper(strings.TrimSpace(in.ReturnCode))
	if !reReturnCode.MatchString(code) {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "return code %q must look like R01", in.ReturnCode)
	}
	if in.NSFFee != nil && in.NSFFee.IsNegative() {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "nsf_fee must not be negative")
	}
	_, owner, err := u.locate(ctx, in.EntryID)
	if err != nil {
		return nil, err
	}
	at := u.now()
	if in.ReturnedAt != nil {
		at = in.ReturnedAt.UTC()
	}

	out, err := u.onEntry(ctx, owner.BatchID, in.EntryID, func(r uow.Repos, b *batch.Batch, e *batch.Entry) (bool, error) {
		if e.Status != batch.EntrySubmitted && e.Status != batch.EntryProcessing {
			return false, apperrors.Wrap(apperrors.ErrInvalidState, "entry %s is %s; only sent payments can be returned", e.EntryID, e.Status)
		}
		return true, markReturned(ctx, r, b, e, code, in.ReturnReason, in.NSFFee, at)
	})
	if err != nil {
		return nil, err
	}
	u.announce(ctx, owner, out, "entry.returned", map[string]any{"return_code": code, "return_reason": in.ReturnReason})
	return out, nil
}

// ApplyProviderEvent moves an entry as reported by a provider callback.
// Replaying an event that was already applied changes nothing.
func (u *Usecase) ApplyProviderEvent(ctx context.Context, ev ProviderEvent) (*EntryDTO, error) {
	if ev.EntryID == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "entry_id is required")
	}
	pre, owner, err := u.locate(ctx, ev.EntryID)
	if err != nil {
		return nil, err
	}
	if ev.CompanyID != "" && ev.CompanyID != owner.CompanyID {
		return nil, apperrors.Wrap(apperrors.ErrAuthorization, "entry %s belongs to another company", ev.EntryID)
	}
	if ev.ProviderPaymentID != "" && pre.ProviderPaymentID != "" && ev.ProviderPaymentID != pre.ProviderPaymentID {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "provider payment id does not match entry %s", ev.EntryID)
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = u.now()
	}

	var change entryChange
	switch ev.Type {
	case webhook.EventPaymentProcessing:
		change = func(_ uow.Repos, b *batch.Batch, e *batch.Entry) (bool, error) {
			if e.Status != batch.EntrySubmitted {
				return false, nil
			}
			if b.Status == batch.StatusSubmitted {
				if err := b.Advance(batch.StatusProcessing); err != nil {
					return false, err
				}
			}
			return true, e.Transition(batch.EntryProcessing)
		}
	case webhook.EventPaymentCompleted:
		change = func(_ uow.Repos, _ *batch.Batch, e *batch.Entry) (bool, error) {
			if e.Status == batch.EntryCompleted {
				return false, nil
			}
			return true, e.Transition(batch.EntryCompleted)
		}
	case webhook.EventPaymentReturned:
		code := strings.ToUpper(strings.TrimSpace(ev.ReturnCode))
		if !reReturnCode.MatchString(code) {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "return code %q must look like R01", ev.ReturnCode)
		}
		change = func(r uow.Repos, b *batch.Batch, e *batch.Entry) (bool, error) {
			if e.Status == batch.EntryReturned {
				return false, nil
			}
			if e.Status != batch.EntrySubmitted && e.Status != batch.EntryProcessing {
				return false, apperrors.Wrap(apperrors.ErrInvalidState, "entry %s is %s", e.EntryID, e.Status)
			}
			return true, markReturned(ctx, r, b, e, code, ev.ReturnReason, nil, at)
		}
	case webhook.EventPaymentFailed:
		change = func(_ uow.Repos, _ *batch.Batch, e *batch.Entry) (bool, error) {
			if e.Status == batch.EntryFailed {
				return false, nil
			}
			e.FailureReason = clip(ev.Reason)
			return true, e.Transition(batch.EntryFailed)
		}
	default:
		return nil, apperrors.Wrap(apperrors.ErrValidation, "unsupported event type %q", ev.Type)
	}

	out, err := u.onEntry(ctx, owner.BatchID, ev.EntryID, change)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).WithFields(map[string]any{
		"entry_id": ev.EntryID, "event_type": ev.Type, "status": out.Status,
	}).Info("submission: provider event applied")
	u.publisher.Publish(ctx, events.Change{
		CompanyID: owner.CompanyID, Table: "payment_entries", Kind: "update", ID: out.EntryID, Status: string(out.Status), At: u.now(),
	})
	return out, nil
}

func (u *Usecase) locate(ctx context.Context, entryID string) (*batch.Entry, *batch.Batch, error) {
	e, err := u.entries.GetByEntryID(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	b, err := u.batches.GetByID(ctx, e.BatchID)
	if err != nil {
		return nil, nil, err
	}
	return e, b, nil
}

// onEntry applies fn under the batch lock, then settles the batch once every
// entry has reached a final state.
func (u *Usecase) onEntry(ctx context.Context, batchID, entryID string, fn entryChange) (*EntryDTO, error) {
	var out *EntryDTO
	err := u.uow.WithinBatchTx(ctx, batchID, func(r uow.Repos, b *batch.Batch) error {
		e, err := r.Entries.GetByEntryID(ctx, entryID)
		if err != nil {
			return err
		}
		before := b.Status
		changed, err := fn(r, b, e)
		if err != nil {
			return err
		}
		out = &EntryDTO{Entry: *e, BatchID: b.BatchID}
		if !changed {
			return nil
		}
		if err := r.Entries.Save(ctx, e); err != nil {
			return err
		}
		if err := settle(ctx, r, b); err != nil {
			return err
		}
		if b.Status != before {
			return r.Batches.Update(ctx, b)
		}
		return nil
	})
	return out, err
}

// settle closes a sent batch: completed if any payment went through, failed otherwise.
func settle(ctx context.Context, r uow.Repos, b *batch.Batch) error {
	if b.Status != batch.StatusSubmitted && b.Status != batch.StatusProcessing {
		return nil
	}
	entries, err := r.Entries.ListByBatch(ctx, b.ID)
	if err != nil {
		return err
	}
	succeeded := false
	for _, e := range entries {
		if !e.Status.Terminal() {
			return nil
		}
		if e.Status == batch.EntryCompleted || e.Status == batch.EntryReturned {
			succeeded = true
		}
	}
	if succeeded {
		return b.Advance(batch.StatusCompleted)
	}
	return b.Advance(batch.StatusFailed)
}

func markReturned(ctx context.Context, r uow.Repos, b *batch.Batch, e *batch.Entry, code, reason string, fee *decimal.Decimal, at time.Time) error {
	if err := e.Transition(batch.EntryReturned); err != nil {
		return err
	}
	e.ReturnCode = code
	e.ReturnReason = clip(reason)
	e.ReturnedAt = &at
	if fee != nil {
		e.NSFFee = decimal.NewNullDecimal(*fee)
	}

	score := returnScore(code)
	factors, _ := json.Marshal(map[string]any{"return_code": code, "return_reason": reason, "amount": e.Amount})
	return r.Events.Create(ctx, &risk.Event{
		EventID:     id.NewID32(),
		CompanyID:   b.CompanyID,
		BatchID:     &b.ID,
		EntryID:     &e.ID,
		EventType:   "ach_return",
		Severity:    risk.SeverityForScore(score),
		RiskScore:   score,
		RiskFactors: datatypes.JSON(factors),
		ActionTaken: risk.ActionFlag,
		Status:      risk.EventActive,
	})
}

// returnScore ranks return reasons: insufficient funds is routine, bad
// accounts need a data fix, unauthorized debits are the most serious.
func returnScore(code string) int {
	switch code {
	case "R01", "R09":
		return 40
	case "R02", "R03", "R04":
		return 70
	case "R05", "R07", "R10", "R29":
		return 90
	}
	return 50
}

func (u *Usecase) announce(ctx context.Context, b *batch.Batch, e *EntryDTO, kind string, payload map[string]any) {
	now := u.now()
	payload["batch_id"] = b.BatchID
	payload["entry_id"] = e.EntryID
	u.notifier.Notify(ctx, events.Notification{
		Kind:      kind,
		CompanyID: b.CompanyID,
		Subject:   "Payment " + e.EntryID + " in batch " + b.BatchNumber + " " + string(e.Status),
		Payload:   payload,
		At:        now,
	})
	u.publisher.Publish(ctx, events.Change{
		CompanyID: b.CompanyID, Table: "payment_entries", Kind: "update", ID: e.EntryID, Status: string(e.Status), At: now,
	})
}
