package mysql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/apperrors"
	approvalDomain "halonet-payments/internal/domain/approval"
	batchDomain "halonet-payments/internal/domain/batch"
	"halonet-payments/internal/testutil/dbtest"
	"halonet-payments/pkg/id"
)

func makeRequest(batchID uint64, expires time.Time) *approvalDomain.Request {
	r := &approvalDomain.Request{
		RequestID:         id.NewID32(),
		BatchID:           batchID,
		CompanyID:         "co-1",
		RequestType:       approvalDomain.RequestBatchSubmission,
		ApprovalThreshold: 1,
		Status:            approvalDomain.StatusPending,
		ExpiresAt:         expires.UTC(),
	}
	r.SetApprovers([]string{"alice", "bob"})
	return r
}

func TestApproval_CreateGetAndLatest(t *testing.T) {
	db := dbtest.Open(t)
	repo := mysql.NewApprovalRepository(db)
	ctx := context.Background()
	b, _ := dbtest.SeedBatch(t, db, "co-1", batchDomain.StatusDraft, dbtest.Credit("100"))

	first := makeRequest(b.ID, time.Now().Add(time.Hour))
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("Create should start at version 1, got %d", first.Version)
	}
	second := makeRequest(b.ID, time.Now().Add(2*time.Hour))
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	got, err := repo.GetByRequestID(ctx, first.RequestID)
	if err != nil {
		t.Fatalf("GetByRequestID: %v", err)
	}
	if got.CompanyID != "co-1" || len(got.Approvers()) != 2 {
		t.Fatalf("unexpected row: %+v", got)
	}

	latest, err := repo.LatestForBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("LatestForBatch: %v", err)
	}
	if latest.RequestID != second.RequestID {
		t.Fatalf("LatestForBatch: want %s, got %s", second.RequestID, latest.RequestID)
	}

	if _, err := repo.GetByRequestID(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("missing request: want ErrNotFound, got %v", err)
	}
	if _, err := repo.LatestForBatch(ctx, b.ID+100); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("missing batch: want ErrNotFound, got %v", err)
	}
}

func TestApproval_UpdateIsCompareAndSwap(t *testing.T) {
	db := dbtest.Open(t)
	repo := mysql.NewApprovalRepository(db)
	ctx := context.Background()
	b, _ := dbtest.SeedBatch(t, db, "co-1", batchDomain.StatusDraft, dbtest.Credit("100"))

	req := makeRequest(b.ID, time.Now().Add(time.Hour))
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	stale, err := repo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		t.Fatalf("GetByRequestID: %v", err)
	}

	req.ApprovedCount = 1
	if err := repo.Update(ctx, req); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if req.Version != 2 {
		t.Fatalf("version after update = %d", req.Version)
	}

	stale.Status = approvalDomain.StatusRejected
	if err := repo.Update(ctx, stale); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("stale update: want ErrConflict, got %v", err)
	}
	if stale.Version != 1 {
		t.Fatalf("failed update must restore version, got %d", stale.Version)
	}

	got, _ := repo.GetByRequestID(ctx, req.RequestID)
	if got.Status != approvalDomain.StatusPending || got.ApprovedCount != 1 {
		t.Fatalf("row after race: %+v", got)
	}
}

func TestApproval_OneActionPerApprover(t *testing.T) {
	db := dbtest.Open(t)
	repo := mysql.NewApprovalRepository(db)
	ctx := context.Background()
	b, _ := dbtest.SeedBatch(t, db, "co-1", batchDomain.StatusDraft, dbtest.Credit("100"))

	req := makeRequest(b.ID, time.Now().Add(time.Hour))
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	act := func(approver string) *approvalDomain.Action {
		return &approvalDomain.Action{RequestID: req.ID, ApproverID: approver, Decision: approvalDomain.DecisionApprove}
	}
	if err := repo.CreateAction(ctx, act("alice")); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	if err := repo.CreateAction(ctx, act("alice")); !errors.Is(err, apperrors.ErrAuthorization) {
		t.Fatalf("duplicate action: want ErrAuthorization, got %v", err)
	}
	if err := repo.CreateAction(ctx, act("bob")); err != nil {
		t.Fatalf("CreateAction bob: %v", err)
	}

	got, err := repo.GetAction(ctx, req.ID, "bob")
	if err != nil || got.Decision != approvalDomain.DecisionApprove {
		t.Fatalf("GetAction: %+v, %v", got, err)
	}
	if _, err := repo.GetAction(ctx, req.ID, "carol"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("GetAction carol: want ErrNotFound, got %v", err)
	}
	list, err := repo.ListActions(ctx, req.ID)
	if err != nil || len(list) != 2 || list[0].ApproverID != "alice" {
		t.Fatalf("ListActions: %+v, %v", list, err)
	}
}
