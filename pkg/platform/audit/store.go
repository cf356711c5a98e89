package audit

import (
	"context"

	id "medisure/pkg/domain"
)

// Store persists audit trail entries. Append-only by contract: no
// implementation exposes update or delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByClaim(ctx context.Context, claimID id.ClaimID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
