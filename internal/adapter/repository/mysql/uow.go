package mysql

import (
	"context"

	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/uow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func reposFor(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Batches:   &BatchRepository{db: tx},
		Entries:   &EntryRepository{db: tx},
		Approvals: &ApprovalRepository{db: tx},
		Events:    &RiskEventRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
}

func (u *GormUoW) WithinBatchTx(ctx context.Context, batchID string, fn func(r uow.Repos, b *batch.Batch) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		// lock the batch row up-front to prevent races
		b, err := r.Batches.GetByBatchIDForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		return fn(r, b)
	})
}
