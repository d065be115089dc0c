package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_KeepsKind(t *testing.T) {
	err := Wrap(ErrInvalidState, "batch %s is %s", "b-1", "submitted")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "invalid state: batch b-1 is submitted", err.Error())
}

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	require.NoError(t, v.OrNil())

	v.Add(-1, "at least one entry is required")
	v.Add(2, "amount must be positive")
	v.Add(2, "routing number is invalid")
	v.Add(4, "recipient name is required")

	err := v.OrNil()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []int{2, 4}, v.Indices)
	assert.Len(t, v.Problems, 4)
	assert.Equal(t, "entry 2: amount must be positive", v.Problems[1])

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "entry 4: recipient name is required")
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{"timeout", &ProviderError{Timeout: true, Retryable: true}, "provider error (timeout)"},
		{"transport", &ProviderError{Retryable: true, Err: cause}, "provider error (transport): connection reset"},
		{"rejected", &ProviderError{Messages: []string{"R03", "account closed"}}, "provider error (rejected): R03; account closed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
			assert.ErrorIs(t, tc.err, ErrProvider)
		})
	}

	wrapped := &ProviderError{Retryable: true, Err: cause}
	assert.ErrorIs(t, wrapped, cause)
	assert.NotErrorIs(t, wrapped, ErrValidation)
}
