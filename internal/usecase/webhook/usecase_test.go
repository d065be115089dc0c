package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/webhook"
	"halonet-payments/internal/testutil/dbtest"
	"halonet-payments/internal/usecase/submission"
)

type applier struct{ got []submission.ProviderEvent }

func (a *applier) ApplyProviderEvent(_ context.Context, ev submission.ProviderEvent) (*submission.EntryDTO, error) {
	a.got = append(a.got, ev)
	return &submission.EntryDTO{}, nil
}

func setup(t *testing.T, types ...string) (*Usecase, *applier, *EndpointDTO) {
	t.Helper()
	a := &applier{}
	u := NewUsecase(mysql.NewWebhookRepository(dbtest.Open(t)), a)
	ep, err := u.Register(context.Background(), RegisterInput{CompanyID: "co-1", WebhookURL: "https://hooks.example.com/ach", EventTypes: types})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u, a, ep
}

func delivery(ep *EndpointDTO, at time.Time, cb Callback) Delivery {
	body, _ := json.Marshal(cb)
	ts := strconv.FormatInt(at.Unix(), 10)
	return Delivery{EndpointID: ep.EndpointID, Timestamp: ts, Signature: Sign(ep.Secret, ts, body), Body: body}
}

func TestRegister(t *testing.T) {
	_, _, ep := setup(t, domain.EventPaymentReturned)
	if len(ep.Secret) != 64 || len(ep.EndpointID) != 32 {
		t.Fatalf("endpoint = %+v", ep)
	}
	if !ep.Accepts(domain.EventPaymentReturned) || ep.Accepts(domain.EventPaymentCompleted) {
		t.Fatalf("event types = %s", ep.EventTypes)
	}
}

func TestRegister_Validation(t *testing.T) {
	u := NewUsecase(mysql.NewWebhookRepository(dbtest.Open(t)), &applier{})
	tests := []RegisterInput{
		{WebhookURL: "https://x.example.com"},
		{CompanyID: "co-1", WebhookURL: "ftp://x"},
		{CompanyID: "co-1", WebhookURL: "https://x.example.com", EventTypes: []string{"payment.lost"}},
	}
	for i, in := range tests {
		if _, err := u.Register(context.Background(), in); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("case %d: want validation error, got %v", i, err)
		}
	}
}

func TestReceive_AppliesWithEndpointCompany(t *testing.T) {
	u, a, ep := setup(t)
	now := time.Now()
	_, err := u.Receive(context.Background(), delivery(ep, now, Callback{Type: domain.EventPaymentCompleted, EntryID: "e-1"}))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(a.got) != 1 || a.got[0].CompanyID != "co-1" || a.got[0].EntryID != "e-1" {
		t.Fatalf("applied = %+v", a.got)
	}
}

func TestReceive_Rejects(t *testing.T) {
	u, a, ep := setup(t)
	now := time.Now()
	good := delivery(ep, now, Callback{Type: domain.EventPaymentCompleted, EntryID: "e-1"})

	tampered := good
	tampered.Body = []byte(`{"type":"payment.completed","entry_id":"e-2"}`)
	stale := delivery(ep, now.Add(-10*time.Minute), Callback{Type: domain.EventPaymentCompleted, EntryID: "e-1"})
	noTS := good
	noTS.Timestamp = ""
	unknown := good
	unknown.EndpointID = "missing"

	tests := []struct {
		name string
		d    Delivery
		want error
	}{
		{"tampered body", tampered, apperrors.ErrAuthorization},
		{"stale", stale, apperrors.ErrAuthorization},
		{"no timestamp", noTS, apperrors.ErrAuthorization},
		{"unknown endpoint", unknown, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := u.Receive(context.Background(), tt.d); !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
	if len(a.got) != 0 {
		t.Fatalf("nothing should be applied, got %+v", a.got)
	}
}

func TestReceive_IgnoresUnsubscribedType(t *testing.T) {
	u, a, ep := setup(t, domain.EventPaymentReturned)
	out, err := u.Receive(context.Background(), delivery(ep, time.Now(), Callback{Type: domain.EventPaymentCompleted, EntryID: "e-1"}))
	if err != nil || out != nil || len(a.got) != 0 {
		t.Fatalf("out=%v err=%v applied=%d", out, err, len(a.got))
	}
}
