package approvalmock

import (
	"context"

	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/approval"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed domain.Repository. Unset lookups report
// ErrNotFound and unset writes succeed.
type Repo struct {
	CreateFn                  func(ctx context.Context, r *domain.Request) error
	GetByRequestIDFn          func(ctx context.Context, requestID string) (*domain.Request, error)
	GetByRequestIDForUpdateFn func(ctx context.Context, requestID string) (*domain.Request, error)
	LatestForBatchFn          func(ctx context.Context, batchID uint64) (*domain.Request, error)
	UpdateFn                  func(ctx context.Context, r *domain.Request) error
	CreateActionFn            func(ctx context.Context, a *domain.Action) error
	GetActionFn               func(ctx context.Context, requestID uint64, approverID string) (*domain.Action, error)
	ListActionsFn             func(ctx context.Context, requestID uint64) ([]domain.Action, error)
}

func (m *Repo) Create(ctx context.Context, r *domain.Request) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, r)
	}
	return nil
}

func (m *Repo) GetByRequestID(ctx context.Context, requestID string) (*domain.Request, error) {
	if m.GetByRequestIDFn != nil {
		return m.GetByRequestIDFn(ctx, requestID)
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "approval request %s not found", requestID)
}

func (m *Repo) GetByRequestIDForUpdate(ctx context.Context, requestID string) (*domain.Request, error) {
	if m.GetByRequestIDForUpdateFn != nil {
		return m.GetByRequestIDForUpdateFn(ctx, requestID)
	}
	return m.GetByRequestID(ctx, requestID)
}

func (m *Repo) LatestForBatch(ctx context.Context, batchID uint64) (*domain.Request, error) {
	if m.LatestForBatchFn != nil {
		return m.LatestForBatchFn(ctx, batchID)
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "approval request for batch %d not found", batchID)
}

func (m *Repo) Update(ctx context.Context, r *domain.Request) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, r)
	}
	return nil
}

func (m *Repo) CreateAction(ctx context.Context, a *domain.Action) error {
	if m.CreateActionFn != nil {
		return m.CreateActionFn(ctx, a)
	}
	return nil
}

func (m *Repo) GetAction(ctx context.Context, requestID uint64, approverID string) (*domain.Action, error) {
	if m.GetActionFn != nil {
		return m.GetActionFn(ctx, requestID, approverID)
	}
	return nil, apperrors.Wrap(apperrors.ErrNotFound, "approval action %s not found", approverID)
}

func (m *Repo) ListActions(ctx context.Context, requestID uint64) ([]domain.Action, error) {
	if m.ListActionsFn != nil {
		return m.ListActionsFn(ctx, requestID)
	}
	return nil, nil
}
