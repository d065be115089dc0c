package mysql

import (
	"errors"
	"fmt"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/approval"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/company"
	"halonet-payments/internal/domain/risk"
	"halonet-payments/internal/domain/webhook"
	_ "halonet-payments/internal/infrastructure/vault" // registers serializer:sealed

	"gorm.io/gorm"
)

// notFound keeps gorm.ErrRecordNotFound in the chain and adds apperrors.ErrNotFound.
func notFound(err error, what string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %v: %w", apperrors.ErrNotFound, what, key, err)
	}
	return err
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&batch.Batch{},
		&batch.Entry{},
		&approval.Request{},
		&approval.Action{},
		&risk.Control{},
		&risk.Event{},
		&company.Settings{},
		&webhook.Endpoint{},
	)
}
