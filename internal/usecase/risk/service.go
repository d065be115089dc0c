package risk

import (
	"context"
	"encoding/json"
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/events"
	domain "halonet-payments/internal/domain/risk"
	"halonet-payments/internal/domain/uow"
	"halonet-payments/internal/infrastructure/logging"
	"halonet-payments/pkg/id"

	"gorm.io/datatypes"
)

// Reads outside any transaction.
type BatchReader interface {
	GetByBatchID(ctx context.Context, batchID string) (*batch.Batch, error)
	GetByID(ctx context.Context, id uint64) (*batch.Batch, error)
}

type EntryReader interface {
	GetByEntryID(ctx context.Context, entryID string) (*batch.Entry, error)
}

type Service struct {
	uow       uow.UnitOfWork
	eval      *Evaluator
	controls  domain.ControlRepository
	events    domain.EventRepository
	batches   BatchReader
	entries   EntryReader
	notifier  events.Notifier
	publisher events.Publisher
	now       func() time.Time
}

func NewService(tx uow.UnitOfWork, eval *Evaluator, controls domain.ControlRepository, evts domain.EventRepository,
	batches BatchReader, entries EntryReader, n events.Notifier, p events.Publisher) *Service {
	if n == nil {
		n = events.Nop{}
	}
	if p == nil {
		p = events.Nop{}
	}
	return &Service{
		uow: tx, eval: eval, controls: controls, events: evts,
		batches: batches, entries: entries, notifier: n, publisher: p,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateBatch runs the evaluator under the batch lock and stores the verdict.
// Only drafts pick up a changed approval requirement; later states just record the finding.
func (s *Service) EvaluateBatch(ctx context.Context, batchID string) (*EvaluationDTO, error) {
	pre, err := s.batches.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	snap, err := s.eval.Snapshot(ctx, pre.CompanyID)
	if err != nil {
		return nil, err
	}

	var (
		res *Result
		out *batch.Batch
	)
	err = s.uow.WithinBatchTx(ctx, batchID, func(r uow.Repos, b *batch.Batch) error {
		switch b.Status {
		case batch.StatusDraft, batch.StatusPendingApproval, batch.StatusApproved:
		default:
			return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s is %s", b.BatchID, b.Status)
		}
		entries, err := r.Entries.ListByBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		res, err = snap.Evaluate(b, entries)
		if err != nil {
			return err
		}
		for i := range res.Events {
			if err := r.Events.Create(ctx, &res.Events[i]); err != nil {
				return err
			}
		}

		at := snap.Now
		b.RiskAction = res.Action
		b.RiskBlockedBy = res.BlockedBy
		b.RiskEvaluatedAt = &at
		b.RiskHoldUntil = res.HoldUntil
		if b.IsDraft() {
			b.RequiresApproval = res.RequiresApproval
			if res.RequiresApproval {
				b.ApprovalStatus = batch.ApprovalPending
			} else {
				b.ApprovalStatus = batch.ApprovalNotRequired
			}
		}
		if err := r.Batches.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]any{
		"batch_id": out.BatchID, "risk_action": res.Action, "events": len(res.Events),
	}).Info("risk: batch evaluated")
	s.publisher.Publish(ctx, events.Change{
		CompanyID: out.CompanyID, Table: "payment_batches", Kind: "risk_evaluated",
		ID: out.BatchID, Status: string(res.Action), At: snap.Now,
	})
	if res.Action == domain.ActionBlock || res.Action == domain.ActionDelay {
		s.notifier.Notify(ctx, events.Notification{
			Kind:      "risk." + string(res.Action),
			CompanyID: out.CompanyID,
			Subject:   "Payment batch " + out.BatchNumber + " " + string(res.Action) + "ed by risk controls",
			Payload:   map[string]any{"batch_id": out.BatchID, "blocked_by": res.BlockedBy, "hold_until": res.HoldUntil},
			At:        snap.Now,
		})
	}

	dto := &EvaluationDTO{
		BatchID:          out.BatchID,
		Action:           res.Action,
		BlockedBy:        res.BlockedBy,
		HoldUntil:        res.HoldUntil,
		RequiresApproval: res.RequiresApproval,
		EvaluatedAt:      snap.Now,
		Events:           make([]EventDTO, 0, len(res.Events)),
	}
	for _, e := range res.Events {
		dto.Events = append(dto.Events, EventDTO{Event: e, BatchID: out.BatchID})
	}
	return dto, nil
}

// Record appends an event regardless of any evaluator verdict.
func (s *Service) Record(ctx context.Context, in RecordInput) (*EventDTO, error) {
	if in.CompanyID == "" || in.EventType == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "company_id and event_type are required")
	}
	if in.RiskScore < 0 || in.RiskScore > 100 {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "risk_score must be within 0..100")
	}
	ev := domain.Event{
		EventID:     id.NewID32(),
		CompanyID:   in.CompanyID,
		EventType:   in.EventType,
		RiskScore:   in.RiskScore,
		Severity:    in.Severity,
		ActionTaken: in.ActionTaken,
		Status:      domain.EventActive,
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityForScore(in.RiskScore)
	}
	if ev.ActionTaken == "" {
		ev.ActionTaken = domain.ActionFlag
	}
	if in.ControlID != "" {
		cid := in.ControlID
		ev.ControlID = &cid
	}
	factors := in.RiskFactors
	if factors == nil {
		factors = map[string]any{}
	}
	raw, err := json.Marshal(factors)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "risk_factors: %v", err)
	}
	ev.RiskFactors = datatypes.JSON(raw)

	if in.BatchID != "" {
		b, err := s.batches.GetByBatchID(ctx, in.BatchID)
		if err != nil {
			return nil, err
		}
		if b.CompanyID != in.CompanyID {
			return nil, apperrors.Wrap(apperrors.ErrAuthorization, "batch %s belongs to another company", in.BatchID)
		}
		ev.BatchID = &b.ID
	}
	if in.EntryID != "" {
		e, err := s.entries.GetByEntryID(ctx, in.EntryID)
		if err != nil {
			return nil, err
		}
		ev.EntryID = &e.ID
	}

	if err := s.events.Create(ctx, &ev); err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.Change{
		CompanyID: ev.CompanyID, Table: "risk_events", Kind: "insert", ID: ev.EventID, Status: string(ev.Status), At: s.now(),
	})
	return &EventDTO{Event: ev, BatchID: in.BatchID, EntryID: in.EntryID}, nil
}

// Resolve closes an active event; detection fields are never rewritten.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (*EventDTO, error) {
	if in.Status == "" {
		in.Status = domain.EventResolved
	}
	switch in.Status {
	case domain.EventResolved, domain.EventFalsePositive, domain.EventSuppressed:
	default:
		return nil, apperrors.Wrap(apperrors.ErrValidation, "status %q is not a resolution", in.Status)
	}
	ev, err := s.events.GetByEventID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != domain.EventActive {
		return nil, apperrors.Wrap(apperrors.ErrInvalidState, "risk event %s is %s", ev.EventID, ev.Status)
	}
	now := s.now()
	by, notes := in.ResolvedBy, in.Notes
	ev.Status = in.Status
	ev.ResolvedBy = &by
	ev.ResolutionNotes = &notes
	ev.ResolvedAt = &now
	if err := s.events.Resolve(ctx, ev); err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.Change{
		CompanyID: ev.CompanyID, Table: "risk_events", Kind: "update", ID: ev.EventID, Status: string(ev.Status), At: now,
	})
	return s.present(ctx, []domain.Event{*ev})[0], nil
}

func (s *Service) ListActive(ctx context.Context, companyID string) ([]*EventDTO, error) {
	evs, err := s.events.ListActive(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, evs), nil
}

// ListEvents returns the newest events of any status, up to limit.
func (s *Service) ListEvents(ctx context.Context, companyID string, limit int) ([]*EventDTO, error) {
	evs, err := s.events.ListByCompany(ctx, companyID, limit)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, evs), nil
}

func (s *Service) present(ctx context.Context, evs []domain.Event) []*EventDTO {
	publicIDs := map[uint64]string{}
	out := make([]*EventDTO, 0, len(evs))
	for _, e := range evs {
		dto := &EventDTO{Event: e}
		if e.BatchID != nil {
			pid, ok := publicIDs[*e.BatchID]
			if !ok {
				if b, err := s.batches.GetByID(ctx, *e.BatchID); err == nil {
					pid = b.BatchID
				}
				publicIDs[*e.BatchID] = pid
			}
			dto.BatchID = pid
		}
		out = append(out, dto)
	}
	return out
}

// UpsertControl validates the typed configuration before anything is stored.
func (s *Service) UpsertControl(ctx context.Context, in ControlInput) (*domain.Control, error) {
	switch in.ActionType {
	case domain.ActionTypeRequireApproval, domain.ActionTypeBlock, domain.ActionTypeFlag, domain.ActionTypeDelay:
	default:
		return nil, apperrors.Wrap(apperrors.ErrValidation, "unknown action_type %q", in.ActionType)
	}
	if in.Name == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "name is required")
	}

	var c *domain.Control
	if in.ControlID != "" {
		existing, err := s.controls.GetByControlID(ctx, in.ControlID)
		if err != nil {
			return nil, err
		}
		if existing.CompanyID != in.CompanyID {
			return nil, apperrors.Wrap(apperrors.ErrAuthorization, "control %s belongs to another company", in.ControlID)
		}
		c = existing
	} else {
		c = &domain.Control{ControlID: id.NewID32(), CompanyID: in.CompanyID, IsActive: true, Priority: 100}
	}
	c.ControlType = in.ControlType
	c.Name = in.Name
	c.ActionType = in.ActionType
	c.ThresholdConfig = datatypes.JSON(in.ThresholdConfig)
	c.ActionConfig = datatypes.JSON(in.ActionConfig)
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if in.Priority != nil {
		c.Priority = *in.Priority
	}
	if _, err := c.Config(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "%v", err)
	}
	if _, err := c.Actions(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "%v", err)
	}

	if c.ID == 0 {
		err := s.controls.Create(ctx, c)
		return c, err
	}
	return c, s.controls.Save(ctx, c)
}

func (s *Service) ListControls(ctx context.Context, companyID string) ([]domain.Control, error) {
	return s.controls.ListByCompany(ctx, companyID)
}

func (s *Service) DeactivateControl(ctx context.Context, companyID, controlID string) error {
	c, err := s.controls.GetByControlID(ctx, controlID)
	if err != nil {
		return err
	}
	if c.CompanyID != companyID {
		return apperrors.Wrap(apperrors.ErrAuthorization, "control %s belongs to another company", controlID)
	}
	if !c.IsActive {
		return nil
	}
	c.IsActive = false
	return s.controls.Save(ctx, c)
}
