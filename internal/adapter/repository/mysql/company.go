package mysql

import (
	"context"
	"errors"

	companyDomain "halonet-payments/internal/domain/company"
	webhookDomain "halonet-payments/internal/domain/webhook"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CompanyRepository struct{ db *gorm.DB }

func NewCompanyRepository(db *gorm.DB) *CompanyRepository { return &CompanyRepository{db: db} }

func (r *CompanyRepository) Get(ctx context.Context, companyID string) (*companyDomain.Settings, error) {
	var out companyDomain.Settings
	err := r.db.WithContext(ctx).Where("company_id = ?", companyID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return companyDomain.Defaults(companyID), nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CompanyRepository) Upsert(ctx context.Context, s *companyDomain.Settings) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "company_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"default_approver", "approvers", "approval_threshold", "require_2fa",
				"approval_ttl_hours", "garnishment_policy", "company_name",
				"company_identification", "default_provider_id", "updated_at",
			}),
		}).
		Create(s).Error
}

type WebhookRepository struct{ db *gorm.DB }

func NewWebhookRepository(db *gorm.DB) *WebhookRepository { return &WebhookRepository{db: db} }

func (r *WebhookRepository) Create(ctx context.Context, e *webhookDomain.Endpoint) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *WebhookRepository) GetByEndpointID(ctx context.Context, endpointID string) (*webhookDomain.Endpoint, error) {
	var out webhookDomain.Endpoint
	err := r.db.WithContext(ctx).
		Where("endpoint_id = ? AND is_active = ?", endpointID, true).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, "webhook endpoint", endpointID)
	}
	return &out, nil
}
