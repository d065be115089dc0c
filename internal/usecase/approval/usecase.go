package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/approval"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/company"
	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/domain/uow"
	"halonet-payments/internal/infrastructure/logging"
	"halonet-payments/pkg/id"
)

const challengeTTL = 10 * time.Minute

// TwoFactor issues and checks one-time codes bound to a request and approver.
type TwoFactor interface {
	Issue(ctx context.Context, requestID, approverID string, ttl time.Duration) (string, error)
	Verify(ctx context.Context, requestID, approverID, code string) (bool, error)
	Consume(ctx context.Context, requestID, approverID string) error
}

type Usecase struct {
	uow       uow.UnitOfWork
	approvals domain.Repository
	batches   batch.Repository
	settings  company.Repository
	codes     TwoFactor
	notifier  events.Notifier
	publisher events.Publisher
	now       func() time.Time
}

// NewUsecase: the UoW carries every write; the plain repos are for reads outside a tx.
func NewUsecase(tx uow.UnitOfWork, approvals domain.Repository, batches batch.Repository, settings company.Repository,
	codes TwoFactor, n events.Notifier, p events.Publisher) *Usecase {
	if n == nil {
		n = events.Nop{}
	}
	if p == nil {
		p = events.Nop{}
	}
	return &Usecase{
		uow: tx, approvals: approvals, batches: batches, settings: settings, codes: codes,
		notifier: n, publisher: p, now: func() time.Time { return time.Now().UTC() },
	}
}

// RequestApproval opens a request for a draft batch, or re-opens one whose last
// request was rejected or expired.
func (u *Usecase) RequestApproval(ctx context.Context, in RequestApprovalInput) (*RequestDTO, error) {
	if in.RequestType == "" {
		in.RequestType = domain.RequestBatchSubmission
	}
	pre, err := u.batches.GetByBatchID(ctx, in.BatchID)
	if err != nil {
		return nil, err
	}
	settings, err := u.settings.Get(ctx, pre.CompanyID)
	if err != nil {
		return nil, err
	}
	approvers := settings.ApproverList()
	if len(approvers) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrPrecondition, "company %s has no approvers configured", pre.CompanyID)
	}
	threshold := min(max(settings.ApprovalThreshold, 1), len(approvers))
	ttl := time.Duration(settings.ApprovalTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}

	now := u.now()
	var req *domain.Request
	err = u.uow.WithinBatchTx(ctx, in.BatchID, func(r uow.Repos, b *batch.Batch) error {
		latest, err := r.Approvals.LatestForBatch(ctx, b.ID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if latest != nil && latest.Lapsed(now) {
			latest.Status = domain.StatusExpired
			latest.ResolvedAt = &now
			if err := r.Approvals.Update(ctx, latest); err != nil {
				return err
			}
			b.ApprovalStatus = batch.ApprovalExpired
		}

		reopen := b.Status == batch.StatusPendingApproval && latest != nil &&
			(latest.Status == domain.StatusRejected || latest.Status == domain.StatusExpired)
		if b.Status != batch.StatusDraft && !reopen {
			return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s is %s", b.BatchID, b.Status)
		}
		if latest != nil && latest.Status == domain.StatusPending {
			return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s already has a pending request", b.BatchID)
		}
		if !b.RequiresApproval {
			return apperrors.Wrap(apperrors.ErrInvalidState, "batch %s does not require approval", b.BatchID)
		}

		req = &domain.Request{
			RequestID:         id.NewID32(),
			BatchID:           b.ID,
			CompanyID:         b.CompanyID,
			RequestType:       in.RequestType,
			Reason:            in.Reason,
			ApprovalThreshold: threshold,
			Requires2FA:       settings.Require2FA,
			Status:            domain.StatusPending,
			ExpiresAt:         now.Add(ttl),
			RequestedBy:       in.RequestedBy,
			Version:           1,
		}
		req.SetApprovers(approvers)
		if err := r.Approvals.Create(ctx, req); err != nil {
			return err
		}
		if err := b.Advance(batch.StatusPendingApproval); err != nil {
			return err
		}
		b.ApprovalStatus = batch.ApprovalPending
		return r.Batches.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	u.notifier.Notify(ctx, events.Notification{
		Kind:       "approval.requested",
		CompanyID:  req.CompanyID,
		Subject:    "Approval requested for payment batch " + pre.BatchNumber,
		Recipients: approvers,
		Payload:    map[string]any{"request_id": req.RequestID, "batch_id": in.BatchID, "expires_at": req.ExpiresAt},
		At:         now,
	})
	u.publish(ctx, req)
	return &RequestDTO{Request: *req, BatchID: in.BatchID, Actions: []domain.Action{}}, nil
}

// Approve records one approver's sign-off. Reaching the threshold approves the
// request and the batch in the same transaction.
func (u *Usecase) Approve(ctx context.Context, in ApproveInput) (*RequestDTO, error) {
	return u.decide(ctx, in.RequestID, in.ApproverID, domain.DecisionApprove, in.Comments, in.TwoFactorCode)
}

// Reject ends the request; any single required approver may reject.
func (u *Usecase) Reject(ctx context.Context, in RejectInput) (*RequestDTO, error) {
	if strings.TrimSpace(in.Comments) == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "comments are required to reject")
	}
	return u.decide(ctx, in.RequestID, in.ApproverID, domain.DecisionReject, in.Comments, "")
}

func (u *Usecase) decide(ctx context.Context, requestID, approverID string, d domain.Decision, comments, code string) (*RequestDTO, error) {
	now := u.now()
	var (
		expired  bool
		verified bool
		dto      *RequestDTO
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		verified = false
		req, err := r.Approvals.GetByRequestIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Lapsed(now) {
			// commit the expiry, then report it
			expired = true
			return expire(ctx, r, req, now)
		}
		if req.Status.Terminal() {
			return apperrors.Wrap(apperrors.ErrInvalidState, "request %s is %s", req.RequestID, req.Status)
		}
		if !req.IsRequiredApprover(approverID) {
			return apperrors.Wrap(apperrors.ErrAuthorization, "%s is not an approver for request %s", approverID, req.RequestID)
		}
		if _, err := r.Approvals.GetAction(ctx, req.ID, approverID); err == nil {
			return apperrors.Wrap(apperrors.ErrAuthorization, "%s already decided request %s", approverID, req.RequestID)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if d == domain.DecisionApprove && req.Requires2FA {
			if code == "" {
				return apperrors.Wrap(apperrors.ErrTwoFactor, "a verification code is required")
			}
			ok, err := u.codes.Verify(ctx, req.RequestID, approverID, code)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.Wrap(apperrors.ErrTwoFactor, "verification code rejected")
			}
			verified = true
		}

		if err := r.Approvals.CreateAction(ctx, &domain.Action{
			RequestID: req.ID, ApproverID: approverID, Decision: d, Comments: comments, TwoFactorVerified: verified,
		}); err != nil {
			return err
		}

		b, err := r.Batches.GetByID(ctx, req.BatchID)
		if err != nil {
			return err
		}
		batchChanged := false
		switch d {
		case domain.DecisionApprove:
			req.ApprovedCount++
			if req.ApprovedCount >= req.ApprovalThreshold {
				req.Status = domain.StatusApproved
				req.ResolvedAt = &now
				if err := b.Advance(batch.StatusApproved); err != nil {
					return err
				}
				b.ApprovalStatus = batch.ApprovalApproved
				batchChanged = true
			}
		case domain.DecisionReject:
			req.Status = domain.StatusRejected
			req.ResolvedAt = &now
			b.ApprovalStatus = batch.ApprovalRejected
			batchChanged = true
		}
		if err := r.Approvals.Update(ctx, req); err != nil {
			return err
		}
		if batchChanged {
			if err := r.Batches.Update(ctx, b); err != nil {
				return err
			}
		}
		actions, err := r.Approvals.ListActions(ctx, req.ID)
		if err != nil {
			return err
		}
		dto = &RequestDTO{Request: *req, BatchID: b.BatchID, Actions: actions}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperrors.Wrap(apperrors.ErrExpired, "request %s expired", requestID)
	}

	log := logging.FromContext(ctx).WithFields(map[string]any{
		"request_id": dto.RequestID, "approver_id": approverID, "decision": d, "status": dto.Status,
	})
	// the code stays valid until the decision is on disk
	if verified {
		if err := u.codes.Consume(ctx, requestID, approverID); err != nil {
			log.WithError(err).Warn("approval: verification code not consumed")
		}
	}
	log.Info("approval: decision recorded")
	u.notifier.Notify(ctx, events.Notification{
		Kind:      "approval." + string(d),
		CompanyID: dto.CompanyID,
		Subject:   "Approval request " + dto.RequestID + " " + string(dto.Status),
		Payload:   map[string]any{"request_id": dto.RequestID, "batch_id": dto.BatchID, "approver_id": approverID, "comments": comments},
		At:        now,
	})
	u.publish(ctx, &dto.Request)
	return dto, nil
}

// Get applies lazy expiry before returning the request.
func (u *Usecase) Get(ctx context.Context, requestID string) (*RequestDTO, error) {
	now := u.now()
	var dto *RequestDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		req, err := r.Approvals.GetByRequestIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Lapsed(now) {
			if err := expire(ctx, r, req, now); err != nil {
				return err
			}
		}
		b, err := r.Batches.GetByID(ctx, req.BatchID)
		if err != nil {
			return err
		}
		actions, err := r.Approvals.ListActions(ctx, req.ID)
		if err != nil {
			return err
		}
		dto = &RequestDTO{Request: *req, BatchID: b.BatchID, Actions: actions}
		return nil
	})
	return dto, err
}

// IssueTwoFactorChallenge sends a fresh one-time code to the approver.
func (u *Usecase) IssueTwoFactorChallenge(ctx context.Context, requestID, approverID string) (time.Time, error) {
	req, err := u.approvals.GetByRequestID(ctx, requestID)
	if err != nil {
		return time.Time{}, err
	}
	now := u.now()
	switch {
	case req.Status.Terminal() || req.Lapsed(now):
		return time.Time{}, apperrors.Wrap(apperrors.ErrInvalidState, "request %s is no longer pending", requestID)
	case !req.Requires2FA:
		return time.Time{}, apperrors.Wrap(apperrors.ErrInvalidState, "request %s does not use two-factor verification", requestID)
	case !req.IsRequiredApprover(approverID):
		return time.Time{}, apperrors.Wrap(apperrors.ErrAuthorization, "%s is not an approver for request %s", approverID, requestID)
	}
	code, err := u.codes.Issue(ctx, requestID, approverID, challengeTTL)
	if err != nil {
		return time.Time{}, err
	}
	u.notifier.Notify(ctx, events.Notification{
		Kind:       "approval.2fa_code",
		CompanyID:  req.CompanyID,
		Subject:    "Your approval verification code",
		Recipients: []string{approverID},
		Payload:    map[string]any{"request_id": requestID},
		At:         now,
		Secret:     code,
	})
	return now.Add(challengeTTL), nil
}

func (u *Usecase) publish(ctx context.Context, req *domain.Request) {
	u.publisher.Publish(ctx, events.Change{
		CompanyID: req.CompanyID, Table: "approval_requests", Kind: "update", ID: req.RequestID, Status: string(req.Status), At: u.now(),
	})
}

func expire(ctx context.Context, r uow.Repos, req *domain.Request, now time.Time) error {
	req.Status = domain.StatusExpired
	req.ResolvedAt = &now
	if err := r.Approvals.Update(ctx, req); err != nil {
		return err
	}
	b, err := r.Batches.GetByID(ctx, req.BatchID)
	if err != nil {
		return err
	}
	if b.ApprovalStatus != batch.ApprovalPending {
		return nil
	}
	b.ApprovalStatus = batch.ApprovalExpired
	return r.Batches.Update(ctx, b)
}
