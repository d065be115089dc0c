package apperrors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error kinds. Callers match with errors.Is; concrete errors wrap one of these.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("concurrent modification")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidState  = errors.New("invalid state")
	ErrAuthorization = errors.New("not authorized")
	ErrTwoFactor     = errors.New("two-factor verification failed")
	ErrExpired       = errors.New("expired")
	ErrPrecondition  = errors.New("precondition failed")
	ErrProvider      = errors.New("provider error")
)

// Wrap attaches a message to one of the error kinds above.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// ValidationError lists every offending entry index so callers can fix the input in one pass.
type ValidationError struct {
	Indices  []int    `json:"indices,omitempty"`
	Problems []string `json:"problems"`
}

func (e *ValidationError) Add(index int, msg string) {
	if index >= 0 {
		if len(e.Indices) == 0 || e.Indices[len(e.Indices)-1] != index {
			e.Indices = append(e.Indices, index)
		}
		msg = "entry " + strconv.Itoa(index) + ": " + msg
	}
	e.Problems = append(e.Problems, msg)
}

func (e *ValidationError) Empty() bool { return len(e.Problems) == 0 }

// OrNil returns nil when nothing was added.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ProviderError separates retryable transport failures from terminal provider rejections.
type ProviderError struct {
	Retryable bool
	Timeout   bool
	Messages  []string
	Err       error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(ErrProvider.Error())
	switch {
	case e.Timeout:
		b.WriteString(" (timeout)")
	case e.Retryable:
		b.WriteString(" (transport)")
	default:
		b.WriteString(" (rejected)")
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error { return e.Err }
