package uowmock

import (
	"context"
	"errors"

	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/uow"
)

var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed uow.UnitOfWork. Unset functions return errUnimplemented.
type UoW struct {
	WithinTxFn      func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinBatchTxFn func(ctx context.Context, batchID string, fn func(r uow.Repos, b *batch.Batch) error) error
}

func New() *UoW { return &UoW{} }

func (m *UoW) WithWithinTx(fn func(context.Context, func(uow.Repos) error) error) *UoW {
	m.WithinTxFn = fn
	return m
}

func (m *UoW) WithWithinBatchTx(fn func(context.Context, string, func(uow.Repos, *batch.Batch) error) error) *UoW {
	m.WithinBatchTxFn = fn
	return m
}

// Passing runs every body against repos, locking b for batch transactions.
func Passing(repos uow.Repos, b *batch.Batch) *UoW {
	return &UoW{
		WithinTxFn: func(_ context.Context, fn func(uow.Repos) error) error { return fn(repos) },
		WithinBatchTxFn: func(_ context.Context, batchID string, fn func(uow.Repos, *batch.Batch) error) error {
			if b == nil || b.BatchID != batchID {
				return errors.New("uowmock: unknown batch " + batchID)
			}
			return fn(repos, b)
		},
	}
}

func (m *UoW) Reset() { *m = UoW{} }

func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}

func (m *UoW) WithinBatchTx(ctx context.Context, batchID string, fn func(r uow.Repos, b *batch.Batch) error) error {
	if m.WithinBatchTxFn != nil {
		return m.WithinBatchTxFn(ctx, batchID, fn)
	}
	return errUnimplemented
}
