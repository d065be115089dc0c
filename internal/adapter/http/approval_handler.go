package http

import (
	"net/http"

	domain "halonet-payments/internal/domain/approval"
	"halonet-payments/internal/usecase/approval"

	"github.com/labstack/echo/v4"
)

type ApprovalHandler struct {
	uc    *approval.Usecase
	scope *Scope
}

func NewApprovalHandler(uc *approval.Usecase, scope *Scope) *ApprovalHandler {
	return &ApprovalHandler{uc: uc, scope: scope}
}

type requestApprovalReq struct {
	Reason      string             `json:"reason"       validate:"max=1000"`
	RequestType domain.RequestType `json:"request_type" validate:"omitempty,oneof=batch_submission void emergency_release"`
}

type approveReq struct {
	Comments string `json:"comments" validate:"max=1000"`
	// Six digits; only checked when the request needs 2FA
	TwoFactorCode string `json:"two_factor_code" validate:"omitempty,numeric,len=6"`
}

type rejectReq struct {
	Comments string `json:"comments" validate:"required,max=1000"`
}

func (h *ApprovalHandler) RequestApproval(c echo.Context) error {
	batchID := c.Param("batch_id")
	if err := h.scope.Batch(c, batchID); err != nil {
		return respondError(c, err)
	}
	var req requestApprovalReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.RequestApproval(ctx(c), approval.RequestApprovalInput{
		BatchID:     batchID,
		RequestedBy: principal(c).UserID,
		Reason:      req.Reason,
		RequestType: req.RequestType,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *ApprovalHandler) Get(c echo.Context) error {
	requestID := c.Param("request_id")
	if err := h.scope.Request(c, requestID); err != nil {
		return respondError(c, err)
	}
	dto, err := h.uc.Get(ctx(c), requestID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) Challenge(c echo.Context) error {
	requestID := c.Param("request_id")
	if err := h.scope.Request(c, requestID); err != nil {
		return respondError(c, err)
	}
	expires, err := h.uc.IssueTwoFactorChallenge(ctx(c), requestID, principal(c).UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{"request_id": requestID, "expires_at": expires})
}

func (h *ApprovalHandler) Approve(c echo.Context) error {
	requestID := c.Param("request_id")
	if err := h.scope.Request(c, requestID); err != nil {
		return respondError(c, err)
	}
	var req approveReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Approve(ctx(c), approval.ApproveInput{
		RequestID:     requestID,
		ApproverID:    principal(c).UserID,
		Comments:      req.Comments,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) Reject(c echo.Context) error {
	requestID := c.Param("request_id")
	if err := h.scope.Request(c, requestID); err != nil {
		return respondError(c, err)
	}
	var req rejectReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Reject(ctx(c), approval.RejectInput{
		RequestID:  requestID,
		ApproverID: principal(c).UserID,
		Comments:   req.Comments,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
