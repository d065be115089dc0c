package http

import (
	"net/http"

	"halonet-payments/internal/usecase/company"
	"halonet-payments/internal/usecase/webhook"

	"github.com/labstack/echo/v4"
)

type CompanyHandler struct {
	settings *company.Usecase
	webhooks *webhook.Usecase
}

func NewCompanyHandler(settings *company.Usecase, webhooks *webhook.Usecase) *CompanyHandler {
	return &CompanyHandler{settings: settings, webhooks: webhooks}
}

func (h *CompanyHandler) GetSettings(c echo.Context) error {
	s, err := h.settings.GetSettings(ctx(c), c.Param("company_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *CompanyHandler) UpdateSettings(c echo.Context) error {
	var req company.SettingsInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	req.CompanyID = c.Param("company_id")
	s, err := h.settings.UpdateSettings(ctx(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// RegisterWebhook returns the signing secret once; it is not readable later.
func (h *CompanyHandler) RegisterWebhook(c echo.Context) error {
	var req webhook.RegisterInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	req.CompanyID = c.Param("company_id")
	ep, err := h.webhooks.Register(ctx(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, ep)
}
