package provider

import (
	"context"
	"testing"
	"time"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/usecase/submission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandbox_PartialRejectionAndReplay(t *testing.T) {
	s := NewSandbox()
	ctx := context.Background()
	friday := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	req := submission.SubmitRequest{
		IdempotencyKey: "b-1",
		EffectiveDate:  friday,
		Payments: []submission.Payment{
			{EntryID: "e-1", AccountNumber: "000123456789"},
			{EntryID: "e-2", AccountNumber: "12349999"},
		},
	}

	resp, err := s.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.True(t, resp.Payments[0].Accepted)
	assert.False(t, resp.Payments[1].Accepted)
	assert.NotEmpty(t, resp.Payments[1].Error)
	assert.Equal(t, time.Monday, resp.EstimatedSettlement.Weekday())

	again, err := s.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, resp.ProviderBatchID, again.ProviderBatchID)

	st, err := s.Status(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, resp.ConfirmationNumber, st.ConfirmationNumber)

	_, err = s.Status(ctx, "b-2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSandbox_AllRejected(t *testing.T) {
	resp, err := NewSandbox().Submit(context.Background(), submission.SubmitRequest{
		IdempotencyKey: "k", Payments: []submission.Payment{{EntryID: "e", AccountNumber: "9999"}},
	})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
}

func TestSandbox_Void(t *testing.T) {
	s := NewSandbox()
	ctx := context.Background()
	resp, err := s.Submit(ctx, submission.SubmitRequest{
		IdempotencyKey: "k", Payments: []submission.Payment{{EntryID: "e", AccountNumber: "1"}},
	})
	require.NoError(t, err)
	pid := resp.Payments[0].ProviderPaymentID

	require.NoError(t, s.Void(ctx, pid, "dup"))
	assert.ErrorIs(t, s.Void(ctx, pid, "dup"), apperrors.ErrProvider)
}
