package risk

import "context"

type ControlRepository interface {
	Create(ctx context.Context, c *Control) error
	Save(ctx context.Context, c *Control) error
	GetByControlID(ctx context.Context, controlID string) (*Control, error)
	// Active controls for a company, ascending priority then id
	ListActive(ctx context.Context, companyID string) ([]Control, error)
	ListByCompany(ctx context.Context, companyID string) ([]Control, error)
}

type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	GetByEventID(ctx context.Context, eventID string) (*Event, error)
	// Writes only status/resolution columns
	Resolve(ctx context.Context, e *Event) error
	// Most recent first
	ListActive(ctx context.Context, companyID string) ([]Event, error)
	ListByCompany(ctx context.Context, companyID string, limit int) ([]Event, error)
}
