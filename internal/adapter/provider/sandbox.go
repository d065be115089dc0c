package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/usecase/submission"
)

// RejectSuffix marks sandbox accounts that the provider refuses, so the
// partial rejection path can be exercised end to end.
const RejectSuffix = "9999"

// Sandbox accepts everything except accounts ending in RejectSuffix. Its ids
// derive from the idempotency key, so replays return the same answer.
type Sandbox struct {
	mu       sync.Mutex
	accepted map[string]*submission.SubmitResponse
	payments map[string]string
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		accepted: map[string]*submission.SubmitResponse{},
		payments: map[string]string{},
	}
}

func (s *Sandbox) ID() string { return "sandbox" }

func (s *Sandbox) Submit(ctx context.Context, req submission.SubmitRequest) (*submission.SubmitResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &apperrors.ProviderError{Retryable: true, Timeout: true, Err: err}
	}
	if req.IdempotencyKey == "" {
		return nil, &apperrors.ProviderError{Messages: []string{"idempotency key is required"}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.accepted[req.IdempotencyKey]; ok {
		return prev, nil
	}

	tag := digest(req.IdempotencyKey)
	settle := nextBusinessDay(req.EffectiveDate)
	resp := &submission.SubmitResponse{
		Accepted:            true,
		ProviderBatchID:     "sb_" + tag[:16],
		ConfirmationNumber:  strings.ToUpper(tag[16:26]),
		EstimatedSettlement: &settle,
	}
	ok := 0
	for _, p := range req.Payments {
		r := submission.PaymentResult{EntryID: p.EntryID}
		if strings.HasSuffix(p.AccountNumber, RejectSuffix) {
			r.Error = "R03 unable to locate account"
		} else {
			r.Accepted = true
			r.ProviderPaymentID = "sp_" + digest(req.IdempotencyKey + "/" + p.EntryID)[:16]
			s.payments[r.ProviderPaymentID] = p.EntryID
			ok++
		}
		resp.Payments = append(resp.Payments, r)
	}
	if ok == 0 {
		resp.Accepted = false
		resp.Errors = []string{"no payment in the batch was accepted"}
	}
	s.accepted[req.IdempotencyKey] = resp
	return resp, nil
}

func (s *Sandbox) Status(_ context.Context, idempotencyKey string) (*submission.SubmitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.accepted[idempotencyKey]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "sandbox has no submission %s", idempotencyKey)
	}
	return resp, nil
}

func (s *Sandbox) Void(_ context.Context, providerPaymentID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[providerPaymentID]; !ok {
		return &apperrors.ProviderError{Messages: []string{"unknown payment " + providerPaymentID}}
	}
	delete(s.payments, providerPaymentID)
	return nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func nextBusinessDay(d time.Time) time.Time {
	d = d.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
