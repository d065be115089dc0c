package company

import (
	"context"
	"errors"
	"testing"

	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/company"
	"halonet-payments/internal/testutil/dbtest"
)

func newUsecase(t *testing.T) *Usecase {
	t.Helper()
	return NewUsecase(mysql.NewCompanyRepository(dbtest.Open(t)), []string{"sandbox", "acme"})
}

func TestUpdateSettings(t *testing.T) {
	u := newUsecase(t)
	ctx := context.Background()

	got, err := u.GetSettings(ctx, "co-1")
	if err != nil || got.ApprovalThreshold != 1 || got.GarnishmentPolicy != domain.PolicyPriority {
		t.Fatalf("defaults = %+v, %v", got, err)
	}

	got, err = u.UpdateSettings(ctx, SettingsInput{
		CompanyID: "co-1", Approvers: []string{"alice", " bob ", "alice", ""}, ApprovalThreshold: 2,
		Require2FA: true, GarnishmentPolicy: domain.PolicyProRata, CompanyName: "Acme", CompanyIdentification: "1234567890",
		DefaultProviderID: "acme",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if list := got.ApproverList(); len(list) != 2 || list[1] != "bob" {
		t.Fatalf("approvers = %v", list)
	}
	if got.ApprovalTTLHours != 48 || !got.Require2FA || got.GarnishmentPolicy != domain.PolicyProRata {
		t.Fatalf("settings = %+v", got)
	}

	// a second write replaces the first
	got, err = u.UpdateSettings(ctx, SettingsInput{CompanyID: "co-1", DefaultApprover: "carol"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if list := got.ApproverList(); len(list) != 1 || list[0] != "carol" || got.Require2FA {
		t.Fatalf("settings = %+v", got)
	}
}

func TestUpdateSettings_Validation(t *testing.T) {
	u := newUsecase(t)
	tests := []struct {
		name string
		in   SettingsInput
	}{
		{"no company", SettingsInput{}},
		{"policy", SettingsInput{CompanyID: "co-1", GarnishmentPolicy: "fifo"}},
		{"unreachable threshold", SettingsInput{CompanyID: "co-1", Approvers: []string{"a"}, ApprovalThreshold: 2}},
		{"unknown provider", SettingsInput{CompanyID: "co-1", DefaultProviderID: "nope"}},
		{"long identification", SettingsInput{CompanyID: "co-1", CompanyIdentification: "12345678901"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.UpdateSettings(context.Background(), tt.in)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}
