package http

import (
	"errors"
	"io"
	"net/http"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/usecase/webhook"

	"github.com/labstack/echo/v4"
)

const maxCallbackBytes = 1 << 20

// WebhookHandler takes provider callbacks. It sits outside Auth; the
// endpoint's HMAC signature is the credential.
type WebhookHandler struct{ uc *webhook.Usecase }

func NewWebhookHandler(uc *webhook.Usecase) *WebhookHandler { return &WebhookHandler{uc: uc} }

func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	out, err := h.uc.Receive(ctx(c), webhook.Delivery{
		EndpointID: c.Param("endpoint_id"),
		Signature:  c.Request().Header.Get(webhook.SignatureHeader),
		Timestamp:  c.Request().Header.Get(webhook.TimestampHeader),
		Body:       body,
	})
	switch {
	case errors.Is(err, apperrors.ErrAuthorization):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "callback rejected"})
	case err != nil:
		return respondError(c, err)
	case out == nil:
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, out)
}
