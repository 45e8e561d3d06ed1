package audit

import (
	"context"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	id "holdright/pkg/domain"
	"holdright/pkg/requestcontext"
)

// Store persists audit entries. Append assigns the next per-hold sequence
// number; implementations must keep sequences gapless and monotonic under
// the hold's lock scope.
type Store interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, holdID id.HoldID, filter Filter) ([]Entry, error)
}

// Trail captures structured audit entries. It is a sink, not a gate: append
// performs no business validation, and append failures are the caller's
// persistence problem, never a state-machine veto.
type Trail struct {
	store  Store
	logger *slog.Logger
}

// NewTrail constructs a Trail over the given store.
func NewTrail(store Store, logger *slog.Logger) *Trail {
	return &Trail{store: store, logger: logger}
}

// Append records an entry, filling in ID and timestamp when unset.
// Returns the stored entry with its assigned sequence number.
func (t *Trail) Append(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	return t.store.Append(ctx, entry)
}

// List returns entries matching the filter in ascending sequence order.
func (t *Trail) List(ctx context.Context, holdID id.HoldID, filter Filter) ([]Entry, error) {
	return t.store.List(ctx, holdID, filter)
}

// Query returns a lazy, restartable sequence of matching entries in
// ascending sequence order. Each range over the result re-queries the
// store, so a re-run yields the same entries unless new ones were appended.
// Store failures end the iteration and are logged; callers needing the
// error use List.
func (t *Trail) Query(ctx context.Context, holdID id.HoldID, filter Filter) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		entries, err := t.store.List(ctx, holdID, filter)
		if err != nil {
			t.logger.ErrorContext(ctx, "audit query failed",
				"hold_id", holdID.String(),
				"error", err,
			)
			return
		}
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	}
}
