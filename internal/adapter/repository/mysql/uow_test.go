package mysql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/apperrors"
	batchDomain "halonet-payments/internal/domain/batch"
	riskDomain "halonet-payments/internal/domain/risk"
	"halonet-payments/internal/domain/uow"
	"halonet-payments/internal/testutil/dbtest"
	"halonet-payments/pkg/id"

	"github.com/shopspring/decimal"
)

func TestGormUoW_WithinBatchTx_Commit(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	b, _ := dbtest.SeedBatch(t, db, "co-1", batchDomain.StatusDraft, dbtest.Credit("100"))

	err := mysql.NewGormUoW(db).WithinBatchTx(ctx, b.BatchID, func(r uow.Repos, locked *batchDomain.Batch) error {
		if locked.ID != b.ID {
			t.Fatalf("locked wrong batch: %+v", locked)
		}
		e := dbtest.Credit("50")
		e.EntryID = id.NewID32()
		e.BatchID = locked.ID
		e.Sequence = 2
		e.Status = batchDomain.EntryPending
		if err := r.Entries.Create(ctx, &e); err != nil {
			return err
		}
		entries, err := r.Entries.ListByBatch(ctx, locked.ID)
		if err != nil {
			return err
		}
		locked.Recompute(entries)
		return r.Batches.Update(ctx, locked)
	})
	if err != nil {
		t.Fatalf("WithinBatchTx: %v", err)
	}

	got, err := mysql.NewBatchRepository(db).GetByBatchID(ctx, b.BatchID)
	if err != nil {
		t.Fatalf("GetByBatchID: %v", err)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("150")) || got.TotalCount != 2 || got.Version != 2 {
		t.Fatalf("batch after commit: total=%s count=%d version=%d", got.TotalAmount, got.TotalCount, got.Version)
	}
}

func TestGormUoW_WithinTx_RollbackOnError(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	b, _ := dbtest.SeedBatch(t, db, "co-1", batchDomain.StatusDraft, dbtest.Credit("100"))
	stop := errors.New("stop")

	eventID := id.NewID32()
	err := mysql.NewGormUoW(db).WithinTx(ctx, func(r uow.Repos) error {
		batchID := b.ID
		if err := r.Events.Create(ctx, &riskDomain.Event{
			EventID: eventID, CompanyID: "co-1", BatchID: &batchID, EventType: "amount_threshold",
			Severity: riskDomain.SeverityHigh, RiskScore: 80, Status: riskDomain.EventActive,
		}); err != nil {
			return err
		}
		b.Status = batchDomain.StatusCancelled
		if err := r.Batches.Update(ctx, b); err != nil {
			return err
		}
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("want %v, got %v", stop, err)
	}

	if _, err := mysql.NewRiskEventRepository(db).GetByEventID(ctx, eventID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("event should be rolled back, got %v", err)
	}
	got, _ := mysql.NewBatchRepository(db).GetByBatchID(ctx, b.BatchID)
	if got.Status != batchDomain.StatusDraft {
		t.Fatalf("batch status should be rolled back, got %s", got.Status)
	}
}

func TestGormUoW_WithinBatchTx_UnknownBatch(t *testing.T) {
	db := dbtest.Open(t)
	called := false
	err := mysql.NewGormUoW(db).WithinBatchTx(context.Background(), "nope", func(uow.Repos, *batchDomain.Batch) error {
		called = true
		return nil
	})
	if !errors.Is(err, apperrors.ErrNotFound) || called {
		t.Fatalf("want ErrNotFound without running fn, got err=%v called=%v", err, called)
	}
}

func TestRiskEvents_ResolveOnlyActive(t *testing.T) {
	db := dbtest.Open(t)
	repo := mysql.NewRiskEventRepository(db)
	ctx := context.Background()

	ev := &riskDomain.Event{
		EventID: id.NewID32(), CompanyID: "co-1", EventType: "velocity",
		Severity: riskDomain.SeverityMedium, RiskScore: 40, Status: riskDomain.EventActive,
	}
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create: %v", err)
	}
	active, err := repo.ListActive(ctx, "co-1")
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActive: %d, %v", len(active), err)
	}

	who, notes, now := "ops-1", "checked", time.Now().UTC()
	ev.Status = riskDomain.EventFalsePositive
	ev.ResolvedBy, ev.ResolutionNotes, ev.ResolvedAt = &who, &notes, &now
	if err := repo.Resolve(ctx, ev); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := repo.Resolve(ctx, ev); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("second resolve: want ErrInvalidState, got %v", err)
	}

	got, _ := repo.GetByEventID(ctx, ev.EventID)
	if got.Status != riskDomain.EventFalsePositive || got.RiskScore != 40 || *got.ResolvedBy != "ops-1" {
		t.Fatalf("resolved row: %+v", got)
	}
	if active, _ := repo.ListActive(ctx, "co-1"); len(active) != 0 {
		t.Fatalf("resolved event still active")
	}
	if all, _ := repo.ListByCompany(ctx, "co-1", 10); len(all) != 1 {
		t.Fatalf("ListByCompany: %d", len(all))
	}
}
