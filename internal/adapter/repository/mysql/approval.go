package mysql

import (
	"context"
	"errors"

	"halonet-payments/internal/apperrors"
	approvalDomain "halonet-payments/internal/domain/approval"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalRepository struct{ db *gorm.DB }

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository { return &ApprovalRepository{db: db} }

func (r *ApprovalRepository) Create(ctx context.Context, a *approvalDomain.Request) error {
	if a.Version == 0 {
		a.Version = 1
	}
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *ApprovalRepository) GetByRequestID(ctx context.Context, requestID string) (*approvalDomain.Request, error) {
	var out approvalDomain.Request
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&out).Error; err != nil {
		return nil, notFound(err, "approval request", requestID)
	}
	return &out, nil
}

func (r *ApprovalRepository) GetByRequestIDForUpdate(ctx context.Context, requestID string) (*approvalDomain.Request, error) {
	var out approvalDomain.Request
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("request_id = ?", requestID).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, "approval request", requestID)
	}
	return &out, nil
}

func (r *ApprovalRepository) LatestForBatch(ctx context.Context, batchID uint64) (*approvalDomain.Request, error) {
	var out approvalDomain.Request
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at DESC, id DESC").
		First(&out).Error
	if err != nil {
		return nil, notFound(err, "approval request for batch", batchID)
	}
	return &out, nil
}

func (r *ApprovalRepository) Update(ctx context.Context, a *approvalDomain.Request) error {
	prev := a.Version
	a.Version = prev + 1
	res := r.db.WithContext(ctx).
		Model(a).
		Where("version = ?", prev).
		Select("*").
		Omit("id", "created_at").
		Updates(a)
	if res.Error != nil {
		a.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		a.Version = prev
		return apperrors.Wrap(apperrors.ErrConflict, "approval request %s changed concurrently", a.RequestID)
	}
	return nil
}

func (r *ApprovalRepository) CreateAction(ctx context.Context, a *approvalDomain.Action) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Wrap(apperrors.ErrAuthorization, "approver %s already acted on this request", a.ApproverID)
	}
	return err
}

func (r *ApprovalRepository) GetAction(ctx context.Context, requestID uint64, approverID string) (*approvalDomain.Action, error) {
	var out approvalDomain.Action
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND approver_id = ?", requestID, approverID).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, "approval action", approverID)
	}
	return &out, nil
}

func (r *ApprovalRepository) ListActions(ctx context.Context, requestID uint64) ([]approvalDomain.Action, error) {
	var out []approvalDomain.Action
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
