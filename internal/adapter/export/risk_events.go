// Package export renders reports for download.
package export

import (
	"bytes"
	"fmt"
	"time"

	"halonet-payments/internal/usecase/risk"

	"github.com/xuri/excelize/v2"
)

const (
	sheet       = "Risk events"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []any{"Event ID", "Created", "Type", "Severity", "Score", "Action", "Status", "Batch", "Control", "Resolved by", "Notes"}

// RiskEvents writes one row per event, newest first as given.
func RiskEvents(evs []*risk.EventDTO) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, e := range evs {
		row := []any{
			e.EventID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.EventType,
			string(e.Severity),
			e.RiskScore,
			string(e.ActionTaken),
			string(e.Status),
			e.BatchID,
			deref(e.ControlID),
			deref(e.ResolvedBy),
			deref(e.ResolutionNotes),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
