package notify

import (
	"context"
	"log/slog"
	"time"

	"holdright/internal/audit"
	"holdright/internal/platform/metrics"
	"holdright/pkg/requestcontext"
)

// Queue decouples notification delivery from hold state changes. Enqueue is
// called after the hold's lock is released; a worker goroutine honors quiet
// hours, dispatches with a timeout, and feeds the outcome back to the audit
// trail as an informational entry.
type Queue struct {
	dispatcher Dispatcher
	prefs      PreferenceSource
	auditInbox chan<- audit.Entry
	jobs       chan Message
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewQueue constructs a dispatch queue with the given capacity.
func NewQueue(
	dispatcher Dispatcher,
	prefs PreferenceSource,
	auditInbox chan<- audit.Entry,
	capacity int,
	timeout time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Queue {
	return &Queue{
		dispatcher: dispatcher,
		prefs:      prefs,
		auditInbox: auditInbox,
		jobs:       make(chan Message, capacity),
		timeout:    timeout,
		logger:     logger,
		metrics:    m,
	}
}

// Enqueue hands a message to the worker without blocking. Returns false when
// the queue is full; callers treat that as a dispatch attempt that was never
// made (the reminder schedule must not advance).
func (q *Queue) Enqueue(msg Message) bool {
	select {
	case q.jobs <- msg:
		return true
	default:
		q.logger.Warn("notification queue full, dropping message",
			"hold_id", msg.HoldID.String(),
			"recipient", msg.RecipientEmail,
		)
		return false
	}
}

// Run processes jobs until the context is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q.jobs:
			q.process(ctx, msg)
		}
	}
}

func (q *Queue) process(ctx context.Context, msg Message) {
	prefs, err := q.prefs.For(ctx, msg.RecipientEmail)
	if err != nil {
		q.logger.WarnContext(ctx, "preference lookup failed, using defaults",
			"recipient", msg.RecipientEmail,
			"error", err,
		)
		prefs = Preferences{Channel: msg.Channel}
	}
	if prefs.Channel != "" {
		msg.Channel = prefs.Channel
	}

	if prefs.QuietHours != nil {
		now := requestcontext.Now(ctx)
		if next := prefs.QuietHours.NextAllowed(now); next.After(now) {
			q.requeueAfter(msg, next.Sub(now))
			return
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	result, err := q.dispatcher.Dispatch(dispatchCtx, msg)
	entry := audit.Entry{
		HoldID: msg.HoldID,
		Actor:  "system",
	}
	switch {
	case err != nil:
		q.metrics.DispatchFailures.Inc()
		entry.Action = audit.ActionNotificationDispatchFault
		entry.Detail = msg.RecipientEmail + ": " + err.Error()
	case !result.Delivered:
		q.metrics.DispatchFailures.Inc()
		entry.Action = audit.ActionNotificationDispatchFault
		entry.Detail = msg.RecipientEmail + ": " + result.Detail
	default:
		entry.Action = audit.ActionNotificationDispatched
		entry.Detail = msg.RecipientEmail + " via " + string(msg.Channel)
	}

	// Best effort: a full audit inbox loses an informational entry, never a
	// state change.
	select {
	case q.auditInbox <- entry:
	default:
		q.logger.Warn("audit inbox full, dropping dispatch outcome entry",
			"hold_id", msg.HoldID.String(),
		)
	}
}

// requeueAfter re-enqueues a message once its quiet-hours window ends.
func (q *Queue) requeueAfter(msg Message, wait time.Duration) {
	q.logger.Info("deferring notification for quiet hours",
		"recipient", msg.RecipientEmail,
		"wait", wait.String(),
	)
	time.AfterFunc(wait, func() { q.Enqueue(msg) })
}
