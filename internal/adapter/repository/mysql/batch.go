package mysql

import (
	"context"
	"time"

	"halonet-payments/internal/apperrors"
	batchDomain "halonet-payments/internal/domain/batch"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BatchRepository struct{ db *gorm.DB }

func NewBatchRepository(db *gorm.DB) *BatchRepository { return &BatchRepository{db: db} }

func (r *BatchRepository) Create(ctx context.Context, b *batchDomain.Batch) error {
	if b.Version == 0 {
		b.Version = 1
	}
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BatchRepository) GetByBatchID(ctx context.Context, batchID string) (*batchDomain.Batch, error) {
	var out batchDomain.Batch
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&out).Error; err != nil {
		return nil, notFound(err, "batch", batchID)
	}
	return &out, nil
}

func (r *BatchRepository) GetByBatchIDForUpdate(ctx context.Context, batchID string) (*batchDomain.Batch, error) {
	var out batchDomain.Batch
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("batch_id = ?", batchID).
		First(&out).Error
	if err != nil {
		return nil, notFound(err, "batch", batchID)
	}
	return &out, nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id uint64) (*batchDomain.Batch, error) {
	var out batchDomain.Batch
	if err := r.db.WithContext(ctx).First(&out, id).Error; err != nil {
		return nil, notFound(err, "batch", id)
	}
	return &out, nil
}

func (r *BatchRepository) ListByCompany(ctx context.Context, companyID string, status batchDomain.Status) ([]batchDomain.Batch, error) {
	var out []batchDomain.Batch
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (r *BatchRepository) ListCreatedSince(ctx context.Context, companyID string, since time.Time) ([]batchDomain.Batch, error) {
	var out []batchDomain.Batch
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND created_at >= ? AND status <> ?", companyID, since, batchDomain.StatusCancelled).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func (r *BatchRepository) Update(ctx context.Context, b *batchDomain.Batch) error {
	prev := b.Version
	b.Version = prev + 1
	res := r.db.WithContext(ctx).
		Model(b).
		Where("version = ?", prev).
		Select("*").
		Omit("id", "created_at").
		Updates(b)
	if res.Error != nil {
		b.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		b.Version = prev
		return apperrors.Wrap(apperrors.ErrConflict, "batch %s changed concurrently", b.BatchID)
	}
	return nil
}

type EntryRepository struct{ db *gorm.DB }

func NewEntryRepository(db *gorm.DB) *EntryRepository { return &EntryRepository{db: db} }

func (r *EntryRepository) Create(ctx context.Context, e *batchDomain.Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *EntryRepository) CreateMany(ctx context.Context, entries []batchDomain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *EntryRepository) Delete(ctx context.Context, e *batchDomain.Entry) error {
	return r.db.WithContext(ctx).Delete(&batchDomain.Entry{}, e.ID).Error
}

func (r *EntryRepository) GetByEntryID(ctx context.Context, entryID string) (*batchDomain.Entry, error) {
	var out batchDomain.Entry
	if err := r.db.WithContext(ctx).Where("entry_id = ?", entryID).First(&out).Error; err != nil {
		return nil, notFound(err, "entry", entryID)
	}
	return &out, nil
}

func (r *EntryRepository) ListByBatch(ctx context.Context, batchID uint64) ([]batchDomain.Entry, error) {
	var out []batchDomain.Entry
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("sequence ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *EntryRepository) Save(ctx context.Context, e *batchDomain.Entry) error {
	return r.db.WithContext(ctx).Save(e).Error
}
