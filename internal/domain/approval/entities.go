package approval

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

func (s Status) Terminal() bool { return s != StatusPending }

type RequestType string

const (
	RequestBatchSubmission  RequestType = "batch_submission"
	RequestVoid             RequestType = "void"
	RequestEmergencyRelease RequestType = "emergency_release"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Table: approval_requests
type Request struct {
	// Internal numeric PK
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	// Public identifier (32-char lowercase hex)
	RequestID string `gorm:"column:request_id;type:char(32);not null;uniqueIndex:ux_approval_requests_request_id" json:"request_id"`
	// FK to payment_batches.id
	BatchID           uint64         `gorm:"column:batch_id;not null;index" json:"-"`
	CompanyID         string         `gorm:"column:company_id;size:64;not null" json:"company_id"`
	RequestType       RequestType    `gorm:"column:request_type;size:32;not null" json:"request_type"`
	Reason            string         `gorm:"column:reason;type:text" json:"reason"`
	RequiredApprovers datatypes.JSON `gorm:"column:required_approvers;not null" json:"required_approvers"`
	ApprovalThreshold int            `gorm:"column:approval_threshold;not null" json:"approval_threshold"`
	Requires2FA       bool           `gorm:"column:requires_2fa;not null" json:"requires_2fa"`
	ApprovedCount     int            `gorm:"column:approved_count;not null;default:0" json:"approved_count"`
	Status            Status         `gorm:"column:status;size:16;not null" json:"status"`
	ExpiresAt         time.Time      `gorm:"column:expires_at;not null" json:"expires_at"`
	RequestedBy       string         `gorm:"column:requested_by;size:64" json:"requested_by"`
	ResolvedAt        *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	Version           uint64         `gorm:"column:version;not null;default:1" json:"-"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Request) TableName() string { return "approval_requests" }

func (r *Request) Approvers() []string {
	var out []string
	_ = json.Unmarshal(r.RequiredApprovers, &out)
	return out
}

func (r *Request) SetApprovers(ids []string) {
	b, _ := json.Marshal(ids)
	r.RequiredApprovers = datatypes.JSON(b)
}

func (r *Request) IsRequiredApprover(id string) bool {
	for _, a := range r.Approvers() {
		if a == id {
			return true
		}
	}
	return false
}

// Lapsed reports a pending request whose window has closed.
func (r *Request) Lapsed(now time.Time) bool {
	return r.Status == StatusPending && !now.Before(r.ExpiresAt)
}

// Table: approval_actions. One decision per approver per request.
type Action struct {
	ID                uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RequestID         uint64    `gorm:"column:request_id;not null;uniqueIndex:ux_approval_actions_request_approver" json:"-"`
	ApproverID        string    `gorm:"column:approver_id;size:64;not null;uniqueIndex:ux_approval_actions_request_approver" json:"approver_id"`
	Decision          Decision  `gorm:"column:decision;size:16;not null" json:"decision"`
	Comments          string    `gorm:"column:comments;type:text" json:"comments,omitempty"`
	TwoFactorVerified bool      `gorm:"column:two_factor_verified;not null" json:"two_factor_verified"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Action) TableName() string { return "approval_actions" }
