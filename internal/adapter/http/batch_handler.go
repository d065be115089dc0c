package http

import (
	"net/http"
	"time"

	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/batch"
	"halonet-payments/internal/usecase/batch"

	"github.com/labstack/echo/v4"
)

type BatchHandler struct {
	uc    *batch.Usecase
	scope *Scope
}

func NewBatchHandler(uc *batch.Usecase, scope *Scope) *BatchHandler {
	return &BatchHandler{uc: uc, scope: scope}
}

type createBatchReq struct {
	Type          domain.Type        `json:"batch_type"     validate:"required,oneof=payroll garnishment bonus correction"`
	EffectiveDate string             `json:"effective_date" validate:"required,datetime=2006-01-02"`
	Metadata      map[string]any     `json:"metadata"`
	Entries       []batch.EntryInput `json:"entries"`
}

type fromCalculationReq struct {
	Type          domain.Type            `json:"batch_type"     validate:"omitempty,oneof=payroll garnishment bonus correction"`
	EffectiveDate string                 `json:"effective_date" validate:"required,datetime=2006-01-02"`
	RunID         string                 `json:"run_id"         validate:"omitempty,max=64"`
	Results       []batch.EmployeeResult `json:"results"        validate:"required,min=1"`
}

type cancelReq struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// Effective dates are calendar days; the validator already checked the layout.
func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func (h *BatchHandler) CreateBatch(c echo.Context) error {
	var req createBatchReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.CreateBatch(ctx(c), batch.CreateBatchInput{
		CompanyID:     c.Param("company_id"),
		Type:          req.Type,
		EffectiveDate: day(req.EffectiveDate),
		CreatedBy:     principal(c).UserID,
		Metadata:      req.Metadata,
		Entries:       req.Entries,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *BatchHandler) CreateFromCalculation(c echo.Context) error {
	var req fromCalculationReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	if req.Type == "" {
		req.Type = domain.TypePayroll
	}
	dto, err := h.uc.CreateBatchFromCalculation(ctx(c), batch.CalculationRequest{
		CompanyID:     c.Param("company_id"),
		Type:          req.Type,
		EffectiveDate: day(req.EffectiveDate),
		CreatedBy:     principal(c).UserID,
		RunID:         req.RunID,
		Results:       req.Results,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *BatchHandler) ListBatches(c echo.Context) error {
	status := domain.Status(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return respondError(c, apperrors.Wrap(apperrors.ErrValidation, "unknown status %q", status))
	}
	list, err := h.uc.ListBatches(ctx(c), c.Param("company_id"), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"batches": list})
}

func (h *BatchHandler) GetBatch(c echo.Context) error {
	batchID := c.Param("batch_id")
	dto, found, err := h.uc.GetBatch(ctx(c), batchID)
	if err != nil {
		return respondError(c, err)
	}
	if !found || dto.CompanyID != principal(c).CompanyID {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *BatchHandler) AddEntry(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	var req batch.EntryInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.AddEntry(ctx(c), batchID, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *BatchHandler) RemoveEntry(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	dto, err := h.uc.RemoveEntry(ctx(c), batchID, c.Param("entry_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *BatchHandler) Cancel(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	var req cancelReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Cancel(ctx(c), batchID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
