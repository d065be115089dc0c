package http

import (
	"errors"
	"net/http"

	"halonet-payments/internal/apperrors"
	"halonet-payments/internal/usecase/submission"

	"github.com/labstack/echo/v4"
)

type SubmissionHandler struct {
	uc    *submission.Usecase
	scope *Scope
}

func NewSubmissionHandler(uc *submission.Usecase, scope *Scope) *SubmissionHandler {
	return &SubmissionHandler{uc: uc, scope: scope}
}

type submitReq struct {
	ProviderID string `json:"provider_id" validate:"omitempty,max=64"`
}

type voidReq struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (h *SubmissionHandler) Submit(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	var req submitReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.uc.Submit(ctx(c), batchID, req.ProviderID)
	return h.result(c, res, err)
}

func (h *SubmissionHandler) Reconcile(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	res, err := h.uc.Reconcile(ctx(c), batchID)
	return h.result(c, res, err)
}

// result reports a provider outcome. A timeout leaves the submission pending
// and is answered with 202 plus the batch state; other provider failures
// still carry the settled batch state next to the error.
func (h *SubmissionHandler) result(c echo.Context, res *submission.SubmitResult, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, res)
	}
	var pe *apperrors.ProviderError
	if res == nil || !errors.As(err, &pe) {
		return respondError(c, err)
	}
	code := statusOf(err)
	return c.JSON(code, map[string]any{
		"error":     pe.Error(),
		"retryable": pe.Retryable,
		"result":    res,
	})
}

func (h *SubmissionHandler) NACHA(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	f, err := h.uc.GenerateNACHA(ctx(c), batchID)
	if err != nil {
		return respondError(c, err)
	}
	hdr := c.Response().Header()
	hdr.Set(echo.HeaderContentDisposition, `attachment; filename="`+f.FileName+`"`)
	hdr.Set("X-Content-SHA256", f.ContentHash)
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, []byte(f.Content))
}

func (h *SubmissionHandler) Void(c echo.Context) error {
	entryID := c.Param("entry_id")
	if err := h.scope.Entry(c, entryID); err != nil {
		return respondError(c, err)
	}
	var req voidReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.VoidPayment(ctx(c), entryID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *SubmissionHandler) Return(c echo.Context) error {
	entryID := c.Param("entry_id")
	if err := h.scope.Entry(c, entryID); err != nil {
		return respondError(c, err)
	}
	var req submission.ReturnInput
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	req.EntryID = entryID
	dto, err := h.uc.ProcessReturn(ctx(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
