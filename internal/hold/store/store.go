// Package store persists hold aggregates. Implementations return sentinel
// errors for infrastructure facts; the service layer translates them into
// the domain error taxonomy.
package store

import (
	"context"

	"holdright/internal/hold"
	"holdright/pkg/domain"
)

// Store loads and saves whole hold aggregates. Custodian ledger entries
// travel with their hold; there is no custodian-level persistence API.
type Store interface {
	// Create persists a new hold. Returns sentinel.ErrConflict when the ID
	// already exists.
	Create(ctx context.Context, h *hold.Hold) error
	// Get loads a hold by ID. Returns sentinel.ErrNotFound when absent.
	Get(ctx context.Context, id domain.HoldID) (*hold.Hold, error)
	// Save overwrites an existing hold. Returns sentinel.ErrNotFound when
	// the hold was never created.
	Save(ctx context.Context, h *hold.Hold) error
	// List returns every hold, ordered by creation time.
	List(ctx context.Context) ([]*hold.Hold, error)
}
