package batch

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, b *Batch) error
	GetByBatchID(ctx context.Context, batchID string) (*Batch, error)
	// Row lock for the duration of the surrounding transaction
	GetByBatchIDForUpdate(ctx context.Context, batchID string) (*Batch, error)
	GetByID(ctx context.Context, id uint64) (*Batch, error)
	ListByCompany(ctx context.Context, companyID string, status Status) ([]Batch, error)
	// Batches created at or after since, excluding cancelled ones
	ListCreatedSince(ctx context.Context, companyID string, since time.Time) ([]Batch, error)
	// Compare-and-swap on Version; bumps b.Version on success
	Update(ctx context.Context, b *Batch) error
}

type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	CreateMany(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, e *Entry) error
	GetByEntryID(ctx context.Context, entryID string) (*Entry, error)
	// Ordered by sequence
	ListByBatch(ctx context.Context, batchID uint64) ([]Entry, error)
	Save(ctx context.Context, e *Entry) error
}
