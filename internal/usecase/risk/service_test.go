package risk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/events"
	domain "halonet-payments/internal/domain/risk"
	"halonet-payments/internal/testutil/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingSink struct {
	changes []events.Change
	notes   []events.Notification
}

func (r *recordingSink) Publish(_ context.Context, c events.Change) { r.changes = append(r.changes, c) }
func (r *recordingSink) Notify(_ context.Context, n events.Notification) {
	r.notes = append(r.notes, n)
}

func newService(t *testing.T) (*Service, *gorm.DB, *recordingSink) {
	t.Helper()
	db := dbtest.Open(t)
	batches := mysql.NewBatchRepository(db)
	controls := mysql.NewRiskControlRepository(db)
	sink := &recordingSink{}
	svc := NewService(mysql.NewGormUoW(db), NewEvaluator(controls, batches), controls,
		mysql.NewRiskEventRepository(db), batches, mysql.NewEntryRepository(db), sink, sink)
	return svc, db, sink
}

func TestService_EvaluateBatch_PersistsVerdict(t *testing.T) {
	svc, db, sink := newService(t)
	ctx := context.Background()

	_, err := svc.UpsertControl(ctx, ControlInput{
		CompanyID: "co-1", Name: "review big runs", ControlType: domain.ControlAmountThreshold,
		ActionType: domain.ActionTypeRequireApproval, ThresholdConfig: json.RawMessage(`{"max_batch_amount":"1000"}`),
	})
	require.NoError(t, err)

	b, _ := dbtest.SeedBatch(t, db, "co-1", batch.StatusDraft, dbtest.Credit("900"), dbtest.Credit("300"))
	dto, err := svc.EvaluateBatch(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFlag, dto.Action)
	assert.True(t, dto.RequiresApproval)
	require.Len(t, dto.Events, 1)
	assert.Equal(t, b.BatchID, dto.Events[0].BatchID)

	got, err := mysql.NewBatchRepository(db).GetByBatchID(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFlag, got.RiskAction)
	assert.NotNil(t, got.RiskEvaluatedAt)
	assert.True(t, got.RequiresApproval)
	assert.Equal(t, batch.ApprovalPending, got.ApprovalStatus)
	assert.Equal(t, uint64(2), got.Version)

	active, err := svc.ListActive(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.BatchID, active[0].BatchID)
	assert.NotEmpty(t, sink.changes)
}

func TestService_EvaluateBatch_LaterStatesOnlyRecord(t *testing.T) {
	svc, db, sink := newService(t)
	ctx := context.Background()
	_, err := svc.UpsertControl(ctx, ControlInput{
		CompanyID: "co-1", Name: "review", ControlType: domain.ControlAmountThreshold,
		ActionType: domain.ActionTypeRequireApproval, ThresholdConfig: json.RawMessage(`{"max_entry_count":0}`),
	})
	require.NoError(t, err)
	_, err = svc.UpsertControl(ctx, ControlInput{
		CompanyID: "co-1", Name: "cool off", ControlType: domain.ControlAmountThreshold,
		ActionType: domain.ActionTypeDelay, ThresholdConfig: json.RawMessage(`{"max_batch_amount":"1"}`),
		ActionConfig: json.RawMessage(`{"delay_hours":2}`),
	})
	require.NoError(t, err)

	b, _ := dbtest.SeedBatch(t, db, "co-1", batch.StatusApproved, dbtest.Credit("10"))
	dto, err := svc.EvaluateBatch(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDelay, dto.Action)
	assert.NotNil(t, dto.HoldUntil)

	got, err := mysql.NewBatchRepository(db).GetByBatchID(ctx, b.BatchID)
	require.NoError(t, err)
	assert.False(t, got.RequiresApproval, "approval requirement is fixed once past draft")
	assert.NotNil(t, got.RiskHoldUntil)
	require.Len(t, sink.notes, 1)
	assert.Equal(t, "risk.delay", sink.notes[0].Kind)

	sub, _ := dbtest.SeedBatch(t, db, "co-1", batch.StatusSubmitted, dbtest.Credit("10"))
	_, err = svc.EvaluateBatch(ctx, sub.BatchID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestService_RecordAndResolve(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	b, _ := dbtest.SeedBatch(t, db, "co-1", batch.StatusDraft, dbtest.Credit("10"))

	first, err := svc.Record(ctx, RecordInput{CompanyID: "co-1", EventType: "manual_review", RiskScore: 70, BatchID: b.BatchID})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, first.Severity)
	assert.Equal(t, domain.ActionFlag, first.ActionTaken)
	second, err := svc.Record(ctx, RecordInput{CompanyID: "co-1", EventType: "duplicate_payee", RiskScore: 20})
	require.NoError(t, err)

	active, err := svc.ListActive(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, second.EventID, active[0].EventID, "most recent first")

	res, err := svc.Resolve(ctx, ResolveInput{EventID: first.EventID, ResolvedBy: "ops-1", Notes: "checked"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventResolved, res.Status)
	assert.Equal(t, 70, res.RiskScore)
	assert.Equal(t, b.BatchID, res.BatchID)

	_, err = svc.Resolve(ctx, ResolveInput{EventID: first.EventID, ResolvedBy: "ops-2"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = svc.Resolve(ctx, ResolveInput{EventID: second.EventID, Status: domain.EventActive})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	active, err = svc.ListActive(ctx, "co-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = svc.Record(ctx, RecordInput{CompanyID: "co-1", EventType: "x", RiskScore: 101})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = svc.Record(ctx, RecordInput{CompanyID: "co-2", EventType: "x", BatchID: b.BatchID})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestService_ControlManagement(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.UpsertControl(ctx, ControlInput{
		CompanyID: "co-1", Name: "bad", ControlType: domain.ControlVelocityCheck,
		ActionType: domain.ActionTypeFlag, ThresholdConfig: json.RawMessage(`{"window_hours":0}`),
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.UpsertControl(ctx, ControlInput{
		CompanyID: "co-1", Name: "bad action", ControlType: domain.ControlAccountValidation, ActionType: "escalate",
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	prio := 5
	c, err := svc.UpsertControl(ctx, ControlInput{
		CompanyID: "co-1", Name: "accounts", ControlType: domain.ControlAccountValidation,
		ActionType: domain.ActionTypeBlock, Priority: &prio,
	})
	require.NoError(t, err)
	assert.True(t, c.IsActive)
	assert.Equal(t, 5, c.Priority)

	c2, err := svc.UpsertControl(ctx, ControlInput{
		ControlID: c.ControlID, CompanyID: "co-1", Name: "accounts v2", ControlType: domain.ControlAccountValidation,
		ActionType: domain.ActionTypeBlock, ThresholdConfig: json.RawMessage(`{"allowed_account_types":["checking"]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, c2.ID)
	assert.Equal(t, 5, c2.Priority, "priority is kept when not supplied")

	err = svc.DeactivateControl(ctx, "co-2", c.ControlID)
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
	require.NoError(t, svc.DeactivateControl(ctx, "co-1", c.ControlID))

	list, err := svc.ListControls(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
	assert.Equal(t, "accounts v2", list[0].Name)

	err = svc.DeactivateControl(ctx, "co-1", "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
