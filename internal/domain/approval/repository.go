package approval

import "context"

type Repository interface {
	Create(ctx context.Context, r *Request) error

	// Get by public request_id
	GetByRequestID(ctx context.Context, requestID string) (*Request, error)

	// Same, holding a row lock until the transaction ends
	GetByRequestIDForUpdate(ctx context.Context, requestID string) (*Request, error)

	// Most recent request for a batch
	LatestForBatch(ctx context.Context, batchID uint64) (*Request, error)

	// Compare-and-swap on Version
	Update(ctx context.Context, r *Request) error

	// DB uniqueness ensures one action per approver per request
	CreateAction(ctx context.Context, a *Action) error
	GetAction(ctx context.Context, requestID uint64, approverID string) (*Action, error)
	ListActions(ctx context.Context, requestID uint64) ([]Action, error)
}
