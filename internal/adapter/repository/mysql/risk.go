package mysql

import (
	"context"

	"halonet-payments/internal/apperrors"
	riskDomain "halonet-payments/internal/domain/risk"

	"gorm.io/gorm"
)

type RiskControlRepository struct{ db *gorm.DB }

func NewRiskControlRepository(db *gorm.DB) *RiskControlRepository {
	return &RiskControlRepository{db: db}
}

func (r *RiskControlRepository) Create(ctx context.Context, c *riskDomain.Control) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *RiskControlRepository) Save(ctx context.Context, c *riskDomain.Control) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *RiskControlRepository) GetByControlID(ctx context.Context, controlID string) (*riskDomain.Control, error) {
	var out riskDomain.Control
	if err := r.db.WithContext(ctx).Where("control_id = ?", controlID).First(&out).Error; err != nil {
		return nil, notFound(err, "risk control", controlID)
	}
	return &out, nil
}

func (r *RiskControlRepository) ListActive(ctx context.Context, companyID string) ([]riskDomain.Control, error) {
	var out []riskDomain.Control
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND is_active = ?", companyID, true).
		Order("priority ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *RiskControlRepository) ListByCompany(ctx context.Context, companyID string) ([]riskDomain.Control, error) {
	var out []riskDomain.Control
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("priority ASC, id ASC").
		Find(&out).Error
	return out, err
}

type RiskEventRepository struct{ db *gorm.DB }

func NewRiskEventRepository(db *gorm.DB) *RiskEventRepository { return &RiskEventRepository{db: db} }

func (r *RiskEventRepository) Create(ctx context.Context, e *riskDomain.Event) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *RiskEventRepository) GetByEventID(ctx context.Context, eventID string) (*riskDomain.Event, error) {
	var out riskDomain.Event
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&out).Error; err != nil {
		return nil, notFound(err, "risk event", eventID)
	}
	return &out, nil
}

// Resolve never touches detection columns and only succeeds on a still-active row.
func (r *RiskEventRepository) Resolve(ctx context.Context, e *riskDomain.Event) error {
	res := r.db.WithContext(ctx).
		Model(&riskDomain.Event{}).
		Where("id = ? AND status = ?", e.ID, riskDomain.EventActive).
		Updates(map[string]any{
			"status":           e.Status,
			"resolved_by":      e.ResolvedBy,
			"resolution_notes": e.ResolutionNotes,
			"resolved_at":      e.ResolvedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidState, "risk event %s is no longer active", e.EventID)
	}
	return nil
}

func (r *RiskEventRepository) ListActive(ctx context.Context, companyID string) ([]riskDomain.Event, error) {
	var out []riskDomain.Event
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, riskDomain.EventActive).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func (r *RiskEventRepository) ListByCompany(ctx context.Context, companyID string, limit int) ([]riskDomain.Event, error) {
	var out []riskDomain.Event
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
