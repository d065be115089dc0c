package http

import (
	"time"

	"halonet-payments/internal/adapter/middleware"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
)

type Routes struct {
	JWTSecret      string
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	// Guards approval decisions and 2FA challenges
	ApprovalLimiter *limiter.Limiter

	Health      *Handler
	Companies   *CompanyHandler
	Batches     *BatchHandler
	Risk        *RiskHandler
	Approvals   *ApprovalHandler
	Submissions *SubmissionHandler
	Webhooks    *WebhookHandler
	Changes     *ChangesHandler
}

// Register mounts every route. Routes that create batches or move money
// require an Idempotency-Key.
func Register(e *echo.Echo, r Routes) {
	e.GET("/health", r.Health.Health)
	e.POST("/webhooks/:endpoint_id", r.Webhooks.Receive)

	idem := middleware.Idempotency(r.Redis, r.IdempotencyTTL)
	limited := middleware.RateLimit(r.ApprovalLimiter)

	api := e.Group("", middleware.Auth(r.JWTSecret))

	co := api.Group("/companies/:company_id", middleware.SameCompany)
	co.GET("/settings", r.Companies.GetSettings)
	co.PUT("/settings", r.Companies.UpdateSettings)
	co.POST("/webhooks", r.Companies.RegisterWebhook)
	co.POST("/batches", r.Batches.CreateBatch, idem)
	co.POST("/batches/from-calculation", r.Batches.CreateFromCalculation, idem)
	co.GET("/batches", r.Batches.ListBatches)
	co.GET("/risk-controls", r.Risk.ListControls)
	co.POST("/risk-controls", r.Risk.UpsertControl)
	co.GET("/risk-events", r.Risk.ListEvents)
	co.POST("/risk-events", r.Risk.Record)
	co.GET("/risk-events/export", r.Risk.ExportEvents)
	co.GET("/changes", r.Changes.Stream)

	api.GET("/batches/:batch_id", r.Batches.GetBatch)
	api.POST("/batches/:batch_id/entries", r.Batches.AddEntry)
	api.DELETE("/batches/:batch_id/entries/:entry_id", r.Batches.RemoveEntry)
	api.POST("/batches/:batch_id/cancel", r.Batches.Cancel, idem)
	api.POST("/batches/:batch_id/evaluate", r.Risk.Evaluate)
	api.POST("/batches/:batch_id/approval-requests", r.Approvals.RequestApproval)
	api.POST("/batches/:batch_id/submit", r.Submissions.Submit, idem)
	api.POST("/batches/:batch_id/reconcile", r.Submissions.Reconcile, idem)
	api.GET("/batches/:batch_id/nacha", r.Submissions.NACHA)

	api.GET("/approval-requests/:request_id", r.Approvals.Get)
	api.POST("/approval-requests/:request_id/2fa-challenge", r.Approvals.Challenge, limited)
	api.POST("/approval-requests/:request_id/approve", r.Approvals.Approve, limited, idem)
	api.POST("/approval-requests/:request_id/reject", r.Approvals.Reject, limited, idem)

	api.POST("/entries/:entry_id/void", r.Submissions.Void, idem)
	api.POST("/entries/:entry_id/return", r.Submissions.Return, idem)

	api.DELETE("/risk-controls/:control_id", r.Risk.DeactivateControl)
	api.POST("/risk-events/:event_id/resolve", r.Risk.Resolve)
}
