package export

import (
	"bytes"
	"testing"
	"time"

	domain "halonet-payments/internal/domain/risk"
	"halonet-payments/internal/usecase/risk"

	"github.com/xuri/excelize/v2"
)

func TestRiskEvents(t *testing.T) {
	ctrl, by := "ctl-1", "ops"
	evs := []*risk.EventDTO{
		{Event: domain.Event{EventID: "ev-1", EventType: "amount_threshold", Severity: domain.SeverityHigh, RiskScore: 80,
			ActionTaken: domain.ActionBlock, Status: domain.EventActive, ControlID: &ctrl, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, BatchID: "b-1"},
		{Event: domain.Event{EventID: "ev-2", EventType: "ach_return", Severity: domain.SeverityMedium, RiskScore: 40,
			ActionTaken: domain.ActionFlag, Status: domain.EventResolved, ResolvedBy: &by}},
	}

	raw, err := RiskEvents(evs)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "Event ID" || rows[1][0] != "ev-1" || rows[1][1] != "2026-01-02T03:04:05Z" || rows[1][7] != "b-1" || rows[1][8] != "ctl-1" {
		t.Fatalf("row 1 = %v", rows[1])
	}
	if rows[2][6] != "resolved" || rows[2][9] != "ops" {
		t.Fatalf("row 2 = %v", rows[2])
	}
}

func TestRiskEvents_Empty(t *testing.T) {
	raw, err := RiskEvents(nil)
	if err != nil || len(raw) == 0 {
		t.Fatalf("raw=%d err=%v", len(raw), err)
	}
}
