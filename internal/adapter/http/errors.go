package http

import (
	"errors"
	"net/http"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/domain/risk"
	"halonet-payments/internal/infrastructure/logging"

	"github.com/labstack/echo/v4"
)

// statusOf maps an error kind to its HTTP status. Order matters: a timeout is
// also a provider error.
func statusOf(err error) int {
	var pe *apperrors.ProviderError
	switch {
	case errors.As(err, &pe) && pe.Timeout:
		return http.StatusAccepted
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, risk.ErrBadConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidState), errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrTwoFactor):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrExpired):
		return http.StatusGone
	case errors.Is(err, apperrors.ErrPrecondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, apperrors.ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c echo.Context, err error) error {
	code := statusOf(err)
	body := ErrorResponse{Error: err.Error()}
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		body.Error = apperrors.ErrValidation.Error()
		body.Indices = ve.Indices
		body.Problems = ve.Problems
	}
	if code == http.StatusInternalServerError {
		logging.LogError(c.Request().Context(), "http", c.Path(), "unhandled error", nil, err)
		body.Error = "internal error"
	}
	return c.JSON(code, body)
}

// bindValid decodes the body and runs the struct validator; it writes the 400
// or 422 itself and reports false when the handler should stop.
func bindValid(c echo.Context, dst any) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(dst); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	return true, nil
}
