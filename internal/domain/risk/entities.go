package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Action is the evaluator's verdict, ordered allow < flag < delay < block.
type Action string

const (
	ActionAllow Action = "allow"
	ActionFlag  Action = "flag"
	ActionDelay Action = "delay"
	ActionBlock Action = "block"
)

func (a Action) Rank() int {
	switch a {
	case ActionFlag:
		return 1
	case ActionDelay:
		return 2
	case ActionBlock:
		return 3
	}
	return 0
}

// Max returns the more severe of two actions.
func Max(a, b Action) Action {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return ActionAllow
	}
	return a
}

type ControlType string

const (
	ControlAmountThreshold   ControlType = "amount_threshold"
	ControlVelocityCheck     ControlType = "velocity_check"
	ControlAccountValidation ControlType = "account_validation"
	ControlTimeRestriction   ControlType = "time_restriction"
)

type ActionType string

const (
	ActionTypeRequireApproval ActionType = "require_approval"
	ActionTypeBlock           ActionType = "block"
	ActionTypeFlag            ActionType = "flag"
	ActionTypeDelay           ActionType = "delay"
)

// Verdict maps a configured action type onto the evaluator action it contributes.
func (t ActionType) Verdict() Action {
	switch t {
	case ActionTypeBlock:
		return ActionBlock
	case ActionTypeDelay:
		return ActionDelay
	}
	return ActionFlag
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForScore buckets a 0-100 risk score.
func SeverityForScore(score int) Severity {
	switch {
	case score >= 85:
		return SeverityCritical
	case score >= 65:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	}
	return SeverityLow
}

type EventStatus string

const (
	EventActive        EventStatus = "active"
	EventResolved      EventStatus = "resolved"
	EventFalsePositive EventStatus = "false_positive"
	EventSuppressed    EventStatus = "suppressed"
)

var ErrBadConfig = errors.New("invalid risk control configuration")

// Control is a standing company rule. ThresholdConfig holds one of the typed
// configs below, selected by ControlType.
type Control struct {
	ID              uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ControlID       string         `gorm:"column:control_id;type:char(32);not null;uniqueIndex:ux_risk_controls_control_id" json:"control_id"`
	CompanyID       string         `gorm:"column:company_id;size:64;not null;index:idx_risk_controls_company_active" json:"company_id"`
	ControlType     ControlType    `gorm:"column:control_type;size:32;not null" json:"control_type"`
	Name            string         `gorm:"column:name;size:128;not null" json:"name"`
	IsActive        bool           `gorm:"column:is_active;not null;default:true;index:idx_risk_controls_company_active" json:"is_active"`
	ThresholdConfig datatypes.JSON `gorm:"column:threshold_config" json:"threshold_config"`
	ActionType      ActionType     `gorm:"column:action_type;size:32;not null" json:"action_type"`
	ActionConfig    datatypes.JSON `gorm:"column:action_config" json:"action_config"`
	Priority        int            `gorm:"column:priority;not null;default:100" json:"priority"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Control) TableName() string { return "risk_controls" }

type AmountThresholdConfig struct {
	MaxBatchAmount *decimal.Decimal `json:"max_batch_amount,omitempty"`
	MaxEntryAmount *decimal.Decimal `json:"max_entry_amount,omitempty"`
	MaxEntryCount  *int             `json:"max_entry_count,omitempty"`
}

type VelocityCheckConfig struct {
	WindowHours int              `json:"window_hours"`
	MaxBatches  *int             `json:"max_batches,omitempty"`
	MaxAmount   *decimal.Decimal `json:"max_amount,omitempty"`
}

type AccountValidationConfig struct {
	AllowedAccountTypes []string `json:"allowed_account_types,omitempty"`
}

type TimeRestrictionConfig struct {
	Timezone                   string `json:"timezone,omitempty"`
	AllowedWeekdays            []int  `json:"allowed_weekdays,omitempty"`
	StartHour                  *int   `json:"start_hour,omitempty"`
	EndHour                    *int   `json:"end_hour,omitempty"`
	MinLeadDays                int    `json:"min_lead_days,omitempty"`
	RejectWeekendEffectiveDate bool   `json:"reject_weekend_effective_date,omitempty"`
}

type ActionConfig struct {
	DelayHours int `json:"delay_hours,omitempty"`
}

// Config decodes ThresholdConfig into the variant matching ControlType.
func (c *Control) Config() (any, error) {
	raw := []byte(c.ThresholdConfig)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		out any
		err error
	)
	switch c.ControlType {
	case ControlAmountThreshold:
		var v AmountThresholdConfig
		err = json.Unmarshal(raw, &v)
		if err == nil && v.MaxBatchAmount == nil && v.MaxEntryAmount == nil && v.MaxEntryCount == nil {
			err = errors.New("amount_threshold needs at least one limit")
		}
		out = v
	case ControlVelocityCheck:
		var v VelocityCheckConfig
		err = json.Unmarshal(raw, &v)
		if err == nil && (v.WindowHours <= 0 || (v.MaxBatches == nil && v.MaxAmount == nil)) {
			err = errors.New("velocity_check needs window_hours and a limit")
		}
		out = v
	case ControlAccountValidation:
		var v AccountValidationConfig
		err = json.Unmarshal(raw, &v)
		out = v
	case ControlTimeRestriction:
		var v TimeRestrictionConfig
		err = json.Unmarshal(raw, &v)
		if err == nil && v.Timezone != "" {
			_, err = time.LoadLocation(v.Timezone)
		}
		if err == nil && v.StartHour != nil && v.EndHour != nil && (*v.StartHour < 0 || *v.EndHour > 24 || *v.StartHour >= *v.EndHour) {
			err = errors.New("time_restriction hours must satisfy 0 <= start < end <= 24")
		}
		out = v
	default:
		err = fmt.Errorf("unknown control type %q", c.ControlType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: control %s: %v", ErrBadConfig, c.ControlID, err)
	}
	return out, nil
}

func (c *Control) Actions() (ActionConfig, error) {
	var v ActionConfig
	if len(c.ActionConfig) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(c.ActionConfig, &v); err != nil {
		return v, fmt.Errorf("%w: control %s action_config: %v", ErrBadConfig, c.ControlID, err)
	}
	return v, nil
}

// Event is an immutable record of a control firing; only the resolution columns change.
type Event struct {
	ID              uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	EventID         string         `gorm:"column:event_id;type:char(32);not null;uniqueIndex:ux_risk_events_event_id" json:"event_id"`
	CompanyID       string         `gorm:"column:company_id;size:64;not null;index:idx_risk_events_company_status" json:"company_id"`
	BatchID         *uint64        `gorm:"column:batch_id;index" json:"-"`
	EntryID         *uint64        `gorm:"column:entry_id" json:"-"`
	ControlID       *string        `gorm:"column:control_id;type:char(32)" json:"control_id,omitempty"`
	EventType       string         `gorm:"column:event_type;size:64;not null" json:"event_type"`
	Severity        Severity       `gorm:"column:severity;size:16;not null" json:"severity"`
	RiskScore       int            `gorm:"column:risk_score;not null" json:"risk_score"`
	RiskFactors     datatypes.JSON `gorm:"column:risk_factors" json:"risk_factors"`
	ActionTaken     Action         `gorm:"column:action_taken;size:16" json:"action_taken"`
	Status          EventStatus    `gorm:"column:status;size:16;not null;index:idx_risk_events_company_status" json:"status"`
	ResolvedBy      *string        `gorm:"column:resolved_by;size:64" json:"resolved_by,omitempty"`
	ResolutionNotes *string        `gorm:"column:resolution_notes;type:text" json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Event) TableName() string { return "risk_events" }
