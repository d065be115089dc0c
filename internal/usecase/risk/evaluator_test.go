package risk

import (
	"testing"
	"time"

	"halonet-payments/internal/domain/batch"
	domain "halonet-payments/internal/domain/risk"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2025, 9, 3, 15, 0, 0, 0, time.UTC) // a Wednesday

func ctl(name string, typ domain.ControlType, act domain.ActionType, cfg string, prio int) domain.Control {
	return domain.Control{
		ControlID: name + "-id", CompanyID: "co-1", Name: name, IsActive: true,
		ControlType: typ, ActionType: act, ThresholdConfig: []byte(cfg), Priority: prio,
	}
}

func entry(seq int, amount string, routing string) batch.Entry {
	return batch.Entry{
		Sequence: seq, RecipientName: "R", AccountNumber: "123456789", AccountMask: "****6789",
		RoutingNumber: routing, AccountType: batch.AccountChecking, Amount: decimal.RequireFromString(amount),
		TransactionType: batch.TxCredit, PaymentType: batch.PaymentSalary,
	}
}

func draft(entries ...batch.Entry) *batch.Batch {
	b := &batch.Batch{
		ID: 9, BatchID: "b-9", CompanyID: "co-1", Status: batch.StatusDraft,
		EffectiveDate: evalNow.AddDate(0, 0, 5), CreatedAt: evalNow,
	}
	b.Recompute(entries)
	return b
}

func TestEvaluate_BlockShortCircuits(t *testing.T) {
	snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
		ctl("hard cap", domain.ControlAmountThreshold, domain.ActionTypeBlock, `{"max_batch_amount":"1000"}`, 10),
		ctl("entry cap", domain.ControlAmountThreshold, domain.ActionTypeFlag, `{"max_entry_amount":"10"}`, 20),
	}}
	entries := []batch.Entry{entry(1, "3000", "021000021"), entry(2, "2000", "011000015")}

	res, err := snap.Evaluate(draft(entries...), entries)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBlock, res.Action)
	assert.Equal(t, "hard cap", res.BlockedBy)
	require.Len(t, res.Events, 1, "evaluation stops at the first block")
	assert.Equal(t, domain.ActionBlock, res.Events[0].ActionTaken)
	assert.Equal(t, 100, res.Events[0].RiskScore)
	assert.Equal(t, domain.SeverityCritical, res.Events[0].Severity)
	require.NotNil(t, res.Events[0].BatchID)
	assert.Equal(t, uint64(9), *res.Events[0].BatchID)
}

func TestEvaluate_MostSevereWins(t *testing.T) {
	snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
		ctl("big entry", domain.ControlAmountThreshold, domain.ActionTypeFlag, `{"max_entry_amount":"100"}`, 10),
		ctl("many entries", domain.ControlAmountThreshold, domain.ActionTypeDelay, `{"max_entry_count":1}`, 20),
	}}
	snap.Controls[1].ActionConfig = []byte(`{"delay_hours":6}`)
	entries := []batch.Entry{entry(1, "150", "021000021"), entry(2, "50", "011000015")}

	res, err := snap.Evaluate(draft(entries...), entries)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDelay, res.Action)
	assert.Len(t, res.Events, 2)
	require.NotNil(t, res.HoldUntil)
	assert.Equal(t, evalNow.Add(6*time.Hour), *res.HoldUntil)
	assert.Empty(t, res.BlockedBy)
	assert.False(t, res.RequiresApproval)
}

func TestEvaluate_RequireApprovalFlags(t *testing.T) {
	snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
		ctl("review", domain.ControlAmountThreshold, domain.ActionTypeRequireApproval, `{"max_batch_amount":"100"}`, 10),
	}}
	entries := []batch.Entry{entry(1, "150", "021000021")}

	res, err := snap.Evaluate(draft(entries...), entries)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFlag, res.Action)
	assert.True(t, res.RequiresApproval)
	assert.Len(t, res.Events, 1)

	ok, err := snap.RequiresApproval(draft(entries...), entries)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_AccountValidationAlwaysBlocks(t *testing.T) {
	snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
		ctl("accounts", domain.ControlAccountValidation, domain.ActionTypeFlag, `{}`, 50),
	}}
	good := []batch.Entry{entry(1, "10", "021000021")}
	res, err := snap.Evaluate(draft(good...), good)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAllow, res.Action)
	assert.Empty(t, res.Events)

	bad := []batch.Entry{entry(1, "10", "021000021"), entry(2, "10", "021000022")}
	res, err = snap.Evaluate(draft(bad...), bad)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBlock, res.Action)
	assert.Equal(t, "accounts", res.BlockedBy)
	assert.Contains(t, string(res.Events[0].RiskFactors), "routing checksum")
}

func TestEvaluate_VelocityCountsWindow(t *testing.T) {
	snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
		ctl("velocity", domain.ControlVelocityCheck, domain.ActionTypeFlag, `{"window_hours":24,"max_batches":2}`, 10),
	}}
	snap.History = []batch.Batch{
		{ID: 1, CompanyID: "co-1", CreatedAt: evalNow.Add(-2 * time.Hour)},
		{ID: 2, CompanyID: "co-1", CreatedAt: evalNow.Add(-48 * time.Hour)}, // outside the window
		{ID: 9, CompanyID: "co-1", CreatedAt: evalNow},                      // the batch itself
	}
	entries := []batch.Entry{entry(1, "10", "021000021")}
	res, err := snap.Evaluate(draft(entries...), entries)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAllow, res.Action, "two batches in window is within the limit")

	snap.History = append(snap.History, batch.Batch{ID: 3, CompanyID: "co-1", CreatedAt: evalNow.Add(-time.Hour)})
	res, err = snap.Evaluate(draft(entries...), entries)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFlag, res.Action)
	assert.Contains(t, string(res.Events[0].RiskFactors), `"batch_count":3`)
}

func TestEvaluate_TimeRestriction(t *testing.T) {
	tests := []struct {
		name  string
		cfg   string
		eff   time.Time
		fired bool
	}{
		{"inside hours", `{"start_hour":9,"end_hour":17}`, evalNow.AddDate(0, 0, 2), false},
		{"outside hours", `{"start_hour":9,"end_hour":12}`, evalNow.AddDate(0, 0, 2), true},
		{"weekday not allowed", `{"allowed_weekdays":[1,2]}`, evalNow.AddDate(0, 0, 2), true},
		{"lead time too short", `{"min_lead_days":2}`, evalNow.AddDate(0, 0, 1), true},
		{"weekend effective date", `{"reject_weekend_effective_date":true}`, evalNow.AddDate(0, 0, 3), true},
		{"timezone shifts the hour", `{"timezone":"America/New_York","start_hour":9,"end_hour":12}`, evalNow.AddDate(0, 0, 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
				ctl("window", domain.ControlTimeRestriction, domain.ActionTypeDelay, tt.cfg, 10),
			}}
			entries := []batch.Entry{entry(1, "10", "021000021")}
			b := draft(entries...)
			b.EffectiveDate = tt.eff
			res, err := snap.Evaluate(b, entries)
			require.NoError(t, err)
			assert.Equal(t, tt.fired, len(res.Events) == 1)
			if tt.fired {
				assert.Equal(t, domain.ActionDelay, res.Action)
				assert.Equal(t, evalNow.Add(24*time.Hour), *res.HoldUntil)
			}
		})
	}
}

func TestEvaluate_UndecodableConfigFailsClosed(t *testing.T) {
	snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
		ctl("broken", domain.ControlAmountThreshold, domain.ActionTypeFlag, `{"max_batch_amount":`, 10),
	}}
	entries := []batch.Entry{entry(1, "10", "021000021")}
	_, err := snap.Evaluate(draft(entries...), entries)
	assert.ErrorIs(t, err, domain.ErrBadConfig)
}

func TestRequiresApproval_IgnoresOtherActions(t *testing.T) {
	snap := &Snapshot{Now: evalNow, Controls: []domain.Control{
		ctl("cap", domain.ControlAmountThreshold, domain.ActionTypeBlock, `{"max_batch_amount":"1"}`, 10),
	}}
	entries := []batch.Entry{entry(1, "10", "021000021")}
	ok, err := snap.RequiresApproval(draft(entries...), entries)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRatioScore(t *testing.T) {
	d := decimal.RequireFromString
	assert.Equal(t, 40, ratioScore(d("100"), d("100")))
	assert.Equal(t, 70, ratioScore(d("150"), d("100")))
	assert.Equal(t, 100, ratioScore(d("500"), d("100")))
	assert.Equal(t, 100, ratioScore(d("1"), d("0")))
}
