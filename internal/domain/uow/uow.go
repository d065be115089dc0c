package uow

import (
	"context"

	"halonet-payments/internal/domain/approval"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/risk"
)

// Repos are bound to one transaction.
type Repos struct {
	Batches   batch.Repository
	Entries   batch.EntryRepository
	Approvals approval.Repository
	Events    risk.EventRepository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock batch first, then pass it in
	WithinBatchTx(ctx context.Context, batchID string, fn func(r Repos, b *batch.Batch) error) error
}
