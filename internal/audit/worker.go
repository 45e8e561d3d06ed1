package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit entries from a channel and persists them. It lets
// callers that must not block (the notification queue feeding dispatch
// outcomes back) emit entries without holding a hold's lock.
type Worker struct {
	trail  *Trail
	inbox  <-chan Entry
	logger *slog.Logger
}

// NewWorker constructs a Worker draining inbox into the trail.
func NewWorker(trail *Trail, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{trail: trail, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is cancelled. Persistence failures
// are logged and the worker keeps going: informational entries must never
// take the engine down.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if _, err := w.trail.Append(ctx, entry); err != nil {
				w.logger.ErrorContext(ctx, "failed to append audit entry",
					"hold_id", entry.HoldID.String(),
					"action", string(entry.Action),
					"error", err,
				)
			}
		}
	}
}
