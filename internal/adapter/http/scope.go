package http

import (
	"context"

	"halonet-payments/internal/adapter/middleware"
	"halonet-payments/internal/apperrors"
	approvaldomain "halonet-payments/internal/domain/approval"
	batchdomain "halonet-payments/internal/domain/batch"
	riskdomain "halonet-payments/internal/domain/risk"

	"github.com/labstack/echo/v4"
)

// Scope resolves the owning company of a resource addressed by its own id,
// so routes outside /companies/:company_id stay tenant-bound. Resources of
// another company are reported as missing.
type Scope struct {
	Batches   batchdomain.Repository
	Entries   batchdomain.EntryRepository
	Approvals approvaldomain.Repository
	Events    riskdomain.EventRepository
}

func principal(c echo.Context) middleware.Principal {
	p, _ := middleware.PrincipalFrom(c.Request().Context())
	return p
}

func owned(c echo.Context, companyID string, kind, id string) error {
	if companyID != principal(c).CompanyID {
		return apperrors.Wrap(apperrors.ErrNotFound, "%s %s not found", kind, id)
	}
	return nil
}

func (s *Scope) Batch(c echo.Context, batchID string) error {
	b, err := s.Batches.GetByBatchID(ctx(c), batchID)
	if err != nil {
		return err
	}
	return owned(c, b.CompanyID, "batch", batchID)
}

func (s *Scope) Entry(c echo.Context, entryID string) error {
	e, err := s.Entries.GetByEntryID(ctx(c), entryID)
	if err != nil {
		return err
	}
	b, err := s.Batches.GetByID(ctx(c), e.BatchID)
	if err != nil {
		return err
	}
	return owned(c, b.CompanyID, "entry", entryID)
}

func (s *Scope) Request(c echo.Context, requestID string) error {
	r, err := s.Approvals.GetByRequestID(ctx(c), requestID)
	if err != nil {
		return err
	}
	return owned(c, r.CompanyID, "approval request", requestID)
}

func (s *Scope) Event(c echo.Context, eventID string) error {
	e, err := s.Events.GetByEventID(ctx(c), eventID)
	if err != nil {
		return err
	}
	return owned(c, e.CompanyID, "risk event", eventID)
}

func ctx(c echo.Context) context.Context { return c.Request().Context() }
