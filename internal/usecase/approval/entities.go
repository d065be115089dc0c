package approval

import (
	domain "halonet-payments/internal/domain/approval"
)

type RequestApprovalInput struct {
	BatchID     string
	RequestedBy string
	Reason      string
	RequestType domain.RequestType
}

type ApproveInput struct {
	RequestID     string
	ApproverID    string
	Comments      string
	TwoFactorCode string
}

type RejectInput struct {
	RequestID  string
	ApproverID string
	Comments   string
}

type RequestDTO struct {
	domain.Request
	BatchID string          `json:"batch_id"`
	Actions []domain.Action `json:"actions"`
}
