package company

import domain "halonet-payments/internal/domain/company"

// SettingsInput replaces a company's payment settings wholesale.
type SettingsInput struct {
	CompanyID             string                   `json:"-"`
	DefaultApprover       string                   `json:"default_approver" validate:"omitempty,max=64"`
	Approvers             []string                 `json:"approvers" validate:"omitempty,dive,required,max=64"`
	ApprovalThreshold     int                      `json:"approval_threshold" validate:"omitempty,min=1"`
	Require2FA            bool                     `json:"require_2fa"`
	ApprovalTTLHours      int                      `json:"approval_ttl_hours" validate:"omitempty,min=1,max=720"`
	GarnishmentPolicy     domain.GarnishmentPolicy `json:"garnishment_policy"`
	CompanyName           string                   `json:"company_name" validate:"omitempty,max=16"`
	CompanyIdentification string                   `json:"company_identification" validate:"omitempty,max=10"`
	DefaultProviderID     string                   `json:"default_provider_id"`
}
