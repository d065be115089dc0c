package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"halonet-payments/internal/adapter/export"
	"halonet-payments/internal/apperrors"
	riskdomain "halonet-payments/internal/domain/risk"
	"halonet-payments/internal/usecase/risk"

	"github.com/labstack/echo/v4"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

type RiskHandler struct {
	svc   *risk.Service
	scope *Scope
}

func NewRiskHandler(svc *risk.Service, scope *Scope) *RiskHandler {
	return &RiskHandler{svc: svc, scope: scope}
}

type resolveReq struct {
	Status string `json:"status" validate:"omitempty,oneof=resolved false_positive suppressed"`
	Notes  string `json:"notes"  validate:"max=1000"`
}

func (h *RiskHandler) Evaluate(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	dto, err := h.svc.EvaluateBatch(ctx(c), batchID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *RiskHandler) ListControls(c echo.Context) error {
	list, err := h.svc.ListControls(ctx(c), c.Param("company_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"controls": list})
}

func (h *RiskHandler) UpsertControl(c echo.Context) error {
	var req risk.ControlInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	req.CompanyID = c.Param("company_id")
	created := req.ControlID == ""
	out, err := h.svc.UpsertControl(ctx(c), req)
	if err != nil {
		return respondError(c, err)
	}
	if created {
		return c.JSON(http.StatusCreated, out)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RiskHandler) DeactivateControl(c echo.Context) error {
	if err := h.svc.DeactivateControl(ctx(c), principal(c).CompanyID, c.Param("control_id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListEvents serves ?status=active for the open queue, otherwise the newest
// events of any status up to ?limit.
func (h *RiskHandler) ListEvents(c echo.Context) error {
	list, err := h.events(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": list})
}

func (h *RiskHandler) ExportEvents(c echo.Context) error {
	list, err := h.events(c)
	if err != nil {
		return respondError(c, err)
	}
	raw, err := export.RiskEvents(list)
	if err != nil {
		return respondError(c, err)
	}
	name := fmt.Sprintf("risk-events-%s-%s.xlsx", c.Param("company_id"), time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, export.ContentType, raw)
}

func (h *RiskHandler) events(c echo.Context) ([]*risk.EventDTO, error) {
	companyID := c.Param("company_id")
	if c.QueryParam("status") == "active" {
		return h.svc.ListActive(ctx(c), companyID)
	}
	limit := defaultEventLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "limit must be within 1..%d", maxEventLimit)
		}
		limit = n
	}
	return h.svc.ListEvents(ctx(c), companyID, limit)
}

func (h *RiskHandler) Resolve(c echo.Context) error {
	eventID := c.Param("event_id")
	if err := h.scope.Event(c, eventID); err != nil {
		return respondError(c, err)
	}
	var req resolveReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.svc.Resolve(ctx(c), risk.ResolveInput{
		EventID:    eventID,
		ResolvedBy: principal(c).UserID,
		Status:     riskdomain.EventStatus(req.Status),
		Notes:      req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// Record files a manual event, e.g. an operator flagging a payee.
func (h *RiskHandler) Record(c echo.Context) error {
	var req risk.RecordInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	req.CompanyID = c.Param("company_id")
	if req.BatchID != "" {
		if err := h.scope.Batch(c, req.BatchID); err != nil {
			return respondError(c, err)
		}
	}
	if req.EntryID != "" {
		if err := h.scope.Entry(c, req.EntryID); err != nil {
			return respondError(c, err)
		}
	}
	dto, err := h.svc.Record(ctx(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}
