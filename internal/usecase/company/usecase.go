package company

import (
	"context"
	"strings"

	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/company"
	"halonet-payments/internal/infrastructure/logging"
)

type Usecase struct {
	settings  domain.Repository
	providers map[string]bool
}

// NewUsecase takes the provider ids a company may choose as its default.
func NewUsecase(settings domain.Repository, providerIDs []string) *Usecase {
	known := make(map[string]bool, len(providerIDs))
	for _, p := range providerIDs {
		known[p] = true
	}
	return &Usecase{settings: settings, providers: known}
}

func (u *Usecase) GetSettings(ctx context.Context, companyID string) (*domain.Settings, error) {
	return u.settings.Get(ctx, companyID)
}

// UpdateSettings fills unset numbers with the defaults, then checks the
// settings hang together: an approval threshold the approver list can reach,
// a known garnishment policy and a known provider.
func (u *Usecase) UpdateSettings(ctx context.Context, in SettingsInput) (*domain.Settings, error) {
	if strings.TrimSpace(in.CompanyID) == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "company_id is required")
	}
	s := domain.Defaults(in.CompanyID)
	if in.ApprovalThreshold > 0 {
		s.ApprovalThreshold = in.ApprovalThreshold
	}
	if in.ApprovalTTLHours > 0 {
		s.ApprovalTTLHours = in.ApprovalTTLHours
	}
	if in.GarnishmentPolicy != "" {
		s.GarnishmentPolicy = in.GarnishmentPolicy
	}
	s.DefaultApprover = strings.TrimSpace(in.DefaultApprover)
	s.Require2FA = in.Require2FA
	s.CompanyName = strings.TrimSpace(in.CompanyName)
	s.CompanyIdentification = strings.TrimSpace(in.CompanyIdentification)
	s.DefaultProviderID = in.DefaultProviderID

	ve := &apperrors.ValidationError{}
	seen := map[string]bool{}
	approvers := make([]string, 0, len(in.Approvers))
	for _, a := range in.Approvers {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		approvers = append(approvers, a)
	}
	s.SetApprovers(approvers)

	if !s.GarnishmentPolicy.Valid() {
		ve.Add(-1, "garnishment_policy must be priority or pro_rata")
	}
	if n := len(s.ApproverList()); s.ApprovalThreshold > n && n > 0 {
		ve.Add(-1, "approval_threshold exceeds the number of approvers")
	}
	if s.DefaultProviderID != "" && !u.providers[s.DefaultProviderID] {
		ve.Add(-1, "default_provider_id "+s.DefaultProviderID+" is not configured")
	}
	if len(s.CompanyName) > 16 {
		ve.Add(-1, "company_name is limited to 16 characters")
	}
	if len(s.CompanyIdentification) > 10 {
		ve.Add(-1, "company_identification is limited to 10 characters")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if err := u.settings.Upsert(ctx, s); err != nil {
		logging.LogError(ctx, "company", "UpdateSettings", "upsert settings", in.CompanyID, err)
		return nil, err
	}
	return u.settings.Get(ctx, in.CompanyID)
}
