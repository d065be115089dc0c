package company

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// GarnishmentPolicy decides how garnishments share net pay that cannot cover all of them.
type GarnishmentPolicy string

const (
	// Lowest priority number is paid in full before the next one sees anything.
	PolicyPriority GarnishmentPolicy = "priority"
	// Available pay is split in proportion to each order's amount.
	PolicyProRata GarnishmentPolicy = "pro_rata"
)

func (p GarnishmentPolicy) Valid() bool { return p == PolicyPriority || p == PolicyProRata }

// Table: company_payment_settings
type Settings struct {
	ID                    uint64            `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	CompanyID             string            `gorm:"column:company_id;size:64;not null;uniqueIndex:ux_company_payment_settings_company" json:"company_id"`
	DefaultApprover       string            `gorm:"column:default_approver;size:64" json:"default_approver"`
	Approvers             datatypes.JSON    `gorm:"column:approvers" json:"approvers"`
	ApprovalThreshold     int               `gorm:"column:approval_threshold;not null;default:1" json:"approval_threshold"`
	Require2FA            bool              `gorm:"column:require_2fa;not null" json:"require_2fa"`
	ApprovalTTLHours      int               `gorm:"column:approval_ttl_hours;not null;default:48" json:"approval_ttl_hours"`
	GarnishmentPolicy     GarnishmentPolicy `gorm:"column:garnishment_policy;size:16;not null;default:priority" json:"garnishment_policy"`
	CompanyName           string            `gorm:"column:company_name;size:16" json:"company_name"`
	CompanyIdentification string            `gorm:"column:company_identification;size:10" json:"company_identification"`
	DefaultProviderID     string            `gorm:"column:default_provider_id;size:64" json:"default_provider_id"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Settings) TableName() string { return "company_payment_settings" }

// Defaults applies for companies that never saved settings.
func Defaults(companyID string) *Settings {
	return &Settings{
		CompanyID:         companyID,
		ApprovalThreshold: 1,
		ApprovalTTLHours:  48,
		GarnishmentPolicy: PolicyPriority,
	}
}

// ApproverList falls back to the default approver when no explicit list is configured.
func (s *Settings) ApproverList() []string {
	var out []string
	_ = json.Unmarshal(s.Approvers, &out)
	if len(out) == 0 && s.DefaultApprover != "" {
		out = []string{s.DefaultApprover}
	}
	return out
}

func (s *Settings) SetApprovers(ids []string) {
	b, _ := json.Marshal(ids)
	s.Approvers = datatypes.JSON(b)
}

type Repository interface {
	// Returns Defaults when the company has no row
	Get(ctx context.Context, companyID string) (*Settings, error)
	Upsert(ctx context.Context, s *Settings) error
}
