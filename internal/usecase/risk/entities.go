package risk

import (
	"encoding/json"
	"time"

	domain "halonet-payments/internal/domain/risk"
)

type EvaluationDTO struct {
	BatchID          string        `json:"batch_id"`
	Action           domain.Action `json:"action"`
	BlockedBy        string        `json:"blocked_by,omitempty"`
	HoldUntil        *time.Time    `json:"hold_until,omitempty"`
	RequiresApproval bool          `json:"requires_approval"`
	Events           []EventDTO    `json:"events"`
	EvaluatedAt      time.Time     `json:"evaluated_at"`
}

// EventDTO exposes public batch/entry ids in place of the numeric references.
type EventDTO struct {
	domain.Event
	BatchID string `json:"batch_id,omitempty"`
	EntryID string `json:"entry_id,omitempty"`
}

type RecordInput struct {
	CompanyID   string          `json:"company_id"`
	BatchID     string          `json:"batch_id,omitempty"`
	EntryID     string          `json:"entry_id,omitempty"`
	ControlID   string          `json:"control_id,omitempty"`
	EventType   string          `json:"event_type"`
	RiskScore   int             `json:"risk_score"`
	RiskFactors map[string]any  `json:"risk_factors,omitempty"`
	ActionTaken domain.Action   `json:"action_taken"`
	Severity    domain.Severity `json:"severity,omitempty"`
}

type ResolveInput struct {
	EventID    string             `json:"-"`
	ResolvedBy string             `json:"-"`
	Status     domain.EventStatus `json:"status"`
	Notes      string             `json:"notes"`
}

type ControlInput struct {
	ControlID       string             `json:"control_id,omitempty"`
	CompanyID       string             `json:"-"`
	ControlType     domain.ControlType `json:"control_type"`
	Name            string             `json:"name"`
	IsActive        *bool              `json:"is_active,omitempty"`
	ThresholdConfig json.RawMessage    `json:"threshold_config"`
	ActionType      domain.ActionType  `json:"action_type"`
	ActionConfig    json.RawMessage    `json:"action_config,omitempty"`
	Priority        *int               `json:"priority,omitempty"`
}
