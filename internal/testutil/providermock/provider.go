package providermock

import (
	"context"
	"sync"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/usecase/submission"
)

var (
	_ submission.Provider = (*Provider)(nil)
	_ submission.Voider   = (*Provider)(nil)
)

// Provider is a function-backed mock. With no SubmitFn it accepts every payment.
type Provider struct {
	Name     string
	SubmitFn func(ctx context.Context, req submission.SubmitRequest) (*submission.SubmitResponse, error)
	StatusFn func(ctx context.Context, idempotencyKey string) (*submission.SubmitResponse, error)
	VoidFn   func(ctx context.Context, providerPaymentID, reason string) error

	mu    sync.Mutex
	calls []submission.SubmitRequest
	voids []string
}

func (m *Provider) ID() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}

func (m *Provider) Submit(ctx context.Context, req submission.SubmitRequest) (*submission.SubmitResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req)
	}
	return AcceptAll(req), nil
}

func (m *Provider) Status(ctx context.Context, idempotencyKey string) (*submission.SubmitResponse, error) {
	if m.StatusFn != nil {
		return m.StatusFn(ctx, idempotencyKey)
	}
	return nil, apperrors.ErrNotFound
}

func (m *Provider) Void(ctx context.Context, providerPaymentID, reason string) error {
	m.mu.Lock()
	m.voids = append(m.voids, providerPaymentID)
	m.mu.Unlock()
	if m.VoidFn != nil {
		return m.VoidFn(ctx, providerPaymentID, reason)
	}
	return nil
}

// Calls returns every Submit request seen so far.
func (m *Provider) Calls() []submission.SubmitRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]submission.SubmitRequest(nil), m.calls...)
}

func (m *Provider) Voids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.voids...)
}

// AcceptAll accepts the batch and every payment in it.
func AcceptAll(req submission.SubmitRequest) *submission.SubmitResponse {
	resp := &submission.SubmitResponse{
		Accepted:           true,
		ProviderBatchID:    "pb-" + req.BatchID[:8],
		ConfirmationNumber: "CONF-" + req.IdempotencyKey[:6],
	}
	for _, p := range req.Payments {
		resp.Payments = append(resp.Payments, submission.PaymentResult{
			EntryID: p.EntryID, ProviderPaymentID: "pp-" + p.EntryID[:8], Accepted: true,
		})
	}
	return resp
}
