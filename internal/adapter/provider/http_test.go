package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/usecase/submission"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTP(t *testing.T, h http.HandlerFunc) *HTTP {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewHTTP(context.Background(), HTTPConfig{ID: "acme", BaseURL: srv.URL + "/", APIKey: "k-1", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return p
}

func TestHTTP_SubmitSendsKeyAndDecodes(t *testing.T) {
	p := newHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ach/batches", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))
		var req submission.SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b-1", req.BatchID)
		_ = json.NewEncoder(w).Encode(submission.SubmitResponse{
			Accepted: true, ProviderBatchID: "pb-1",
			Payments: []submission.PaymentResult{{EntryID: "e-1", ProviderPaymentID: "pp-1", Accepted: true}},
		})
	})

	resp, err := p.Submit(context.Background(), submission.SubmitRequest{
		IdempotencyKey: "key-1", BatchID: "b-1",
		Payments: []submission.Payment{{EntryID: "e-1", Amount: decimal.RequireFromString("10.00")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", p.ID())
	assert.True(t, resp.Accepted)
	assert.Equal(t, "pp-1", resp.Payments[0].ProviderPaymentID)
}

func TestHTTP_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		msg       string
	}{
		{"server error", http.StatusBadGateway, "", true, "502 Bad Gateway"},
		{"throttled", http.StatusTooManyRequests, `{"error":"slow down"}`, true, "slow down"},
		{"rejected", http.StatusUnprocessableEntity, `{"errors":["bad routing","bad account"]}`, false, "bad routing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newHTTP(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := p.Submit(context.Background(), submission.SubmitRequest{IdempotencyKey: "k"})
			var pe *apperrors.ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Contains(t, pe.Messages, tt.msg)
		})
	}
}

func TestHTTP_TransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	p, err := NewHTTP(context.Background(), HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	srv.Close()

	_, err = p.Submit(context.Background(), submission.SubmitRequest{IdempotencyKey: "k"})
	var pe *apperrors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Retryable)
}

func TestHTTP_StatusUnknownKey(t *testing.T) {
	var hits int32
	p := newHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/v1/ach/batches/by-key/key-9", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := p.Status(context.Background(), "key-9")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.EqualValues(t, 1, hits)
}

func TestHTTP_Void(t *testing.T) {
	p := newHTTP(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ach/payments/pp-1/void", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "duplicate", body["reason"])
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, p.Void(context.Background(), "pp-1", "duplicate"))
}

func TestNewHTTP_RequiresURL(t *testing.T) {
	_, err := NewHTTP(context.Background(), HTTPConfig{})
	assert.Error(t, err)
}
