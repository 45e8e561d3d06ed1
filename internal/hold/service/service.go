// Package service orchestrates hold mutations: locking, persistence, audit
// appends and notification fan-out. Domain rules live on the aggregate; the
// service owns everything around them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"holdright/internal/audit"
	"holdright/internal/hold"
	"holdright/internal/hold/store"
	"holdright/internal/notify"
	"holdright/internal/platform/metrics"
	"holdright/pkg/domain"
	dErrors "holdright/pkg/domain-errors"
	"holdright/pkg/platform/sentinel"
	"holdright/pkg/requestcontext"
)

// Enqueuer hands delivery requests to the async notification pipeline.
// Enqueue must not block; it reports false when the queue is saturated.
type Enqueuer interface {
	Enqueue(msg notify.Message) bool
}

// Service is the application surface for the hold engine. Every mutation
// runs under the hold's lock, persists the aggregate and appends its audit
// entries in the same transactional scope. Notification dispatch happens
// after the lock is released so transport latency never serializes writes.
type Service struct {
	store    store.Store
	txn      HoldTx
	trail    *audit.Trail
	notifier Enqueuer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(st store.Store, txn HoldTx, trail *audit.Trail, notifier Enqueuer, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		txn:      txn,
		trail:    trail,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("holdright/internal/hold/service"),
	}
}

// startOp opens a trace span for one operation and times it into the
// operation duration histogram. The returned func ends both.
func (s *Service) startOp(ctx context.Context, op string, holdID domain.HoldID) (context.Context, func()) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "hold."+op, trace.WithAttributes(
		attribute.String("hold.id", holdID.String()),
	))
	return ctx, func() {
		span.End()
		s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// mapStoreErr translates store sentinels into the domain taxonomy.
func mapStoreErr(err error, holdID domain.HoldID) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "hold %s not found", holdID)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Newf(dErrors.CodeInvalidInput, "hold %s already exists", holdID)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "hold storage failure")
	}
}

// mutate loads the hold under its lock, applies fn, persists the result and
// appends the audit entries fn returned. The aggregate passed to fn is the
// store's isolated copy; partial mutations that end in an error are never
// persisted.
func (s *Service) mutate(ctx context.Context, holdID domain.HoldID, fn func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error)) (*hold.Hold, error) {
	var result *hold.Hold
	err := s.txn.RunInHoldTx(ctx, holdID, func(ctx context.Context) error {
		h, err := s.store.Get(ctx, holdID)
		if err != nil {
			return mapStoreErr(err, holdID)
		}
		entries, err := fn(ctx, h)
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, h); err != nil {
			return mapStoreErr(err, holdID)
		}
		for _, e := range entries {
			if _, err := s.trail.Append(ctx, e); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "audit append failure")
			}
		}
		result = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ComplianceRate.WithLabelValues(holdID.String()).Set(float64(result.ComplianceRate))
	return result, nil
}

func (s *Service) entry(ctx context.Context, holdID domain.HoldID, action audit.Action, detail string) audit.Entry {
	return audit.Entry{
		HoldID: holdID,
		Action: action,
		Actor:  requestcontext.Actor(ctx),
		Detail: detail,
	}
}

// Create builds a draft hold from intake parameters.
func (s *Service) Create(ctx context.Context, params hold.NewHoldParams) (*hold.Hold, error) {
	holdID := domain.NewHoldID()
	ctx, done := s.startOp(ctx, "create", holdID)
	defer done()

	now := requestcontext.Now(ctx)
	h, err := hold.New(holdID, params, now)
	if err != nil {
		return nil, err
	}

	err = s.txn.RunInHoldTx(ctx, holdID, func(ctx context.Context) error {
		if err := s.store.Create(ctx, h); err != nil {
			return mapStoreErr(err, holdID)
		}
		e := s.entry(ctx, holdID, audit.ActionHoldCreated,
			fmt.Sprintf("hold %q created for case %s with %d custodians", h.Name, h.CaseRef, h.TotalCustodians))
		if _, err := s.trail.Append(ctx, e); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "audit append failure")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.HoldsCreated.Inc()
	s.logger.InfoContext(ctx, "hold created",
		slog.String("hold_id", holdID.String()),
		slog.String("case_ref", string(h.CaseRef)),
		slog.Int("custodians", h.TotalCustodians))
	return h, nil
}

// Get loads one hold.
func (s *Service) Get(ctx context.Context, holdID domain.HoldID) (*hold.Hold, error) {
	h, err := s.store.Get(ctx, holdID)
	if err != nil {
		return nil, mapStoreErr(err, holdID)
	}
	return h, nil
}

// List returns all holds in creation order.
func (s *Service) List(ctx context.Context) ([]*hold.Hold, error) {
	holds, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hold storage failure")
	}
	return holds, nil
}

// Issue activates a draft hold.
func (s *Service) Issue(ctx context.Context, holdID domain.HoldID) (*hold.Hold, error) {
	ctx, done := s.startOp(ctx, "issue", holdID)
	defer done()

	h, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		if err := h.Issue(requestcontext.Now(ctx)); err != nil {
			return nil, err
		}
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionHoldIssued, "hold issued")}, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.HoldsIssued.Inc()
	s.logger.InfoContext(ctx, "hold issued", slog.String("hold_id", holdID.String()))
	return h, nil
}

// NotifyOutcome reports the per-custodian result of a bulk notification.
type NotifyOutcome struct {
	Email    string
	Notified bool
	Err      error
}

// NotifyAll sends the initial hold notice to every pending custodian. Each
// custodian succeeds or fails independently; one bad ledger entry does not
// abort the rest. Delivery requests go out only after the state change and
// its audit entry are committed.
func (s *Service) NotifyAll(ctx context.Context, holdID domain.HoldID) ([]NotifyOutcome, error) {
	ctx, done := s.startOp(ctx, "notify_all", holdID)
	defer done()

	var (
		outcomes []NotifyOutcome
		pending  []notify.Message
	)
	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		now := requestcontext.Now(ctx)
		var entries []audit.Entry
		for _, c := range h.Custodians {
			if c.State != domain.CustodianStatePending || c.Released {
				continue
			}
			if _, err := h.NotifyCustodian(c.Email, now); err != nil {
				outcomes = append(outcomes, NotifyOutcome{Email: c.Email, Err: err})
				continue
			}
			outcomes = append(outcomes, NotifyOutcome{Email: c.Email, Notified: true})
			entries = append(entries, s.entry(ctx, holdID, audit.ActionCustodianNotified,
				fmt.Sprintf("initial notice for %s", c.Email)))
			pending = append(pending, s.noticeMessage(h, c, notify.KindInitialNotice))
		}
		if len(entries) == 0 && len(outcomes) == 0 {
			return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "hold %s has no pending custodians to notify", holdID)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueAll(ctx, pending)
	return outcomes, nil
}

// NotifyCustodian sends the initial notice to one custodian.
func (s *Service) NotifyCustodian(ctx context.Context, holdID domain.HoldID, email string) error {
	ctx, done := s.startOp(ctx, "notify_custodian", holdID)
	defer done()

	var msg notify.Message
	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, err := h.NotifyCustodian(email, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		msg = s.noticeMessage(h, c, notify.KindInitialNotice)
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionCustodianNotified,
			fmt.Sprintf("initial notice for %s", c.Email))}, nil
	})
	if err != nil {
		return err
	}

	s.enqueueAll(ctx, []notify.Message{msg})
	return nil
}

// Acknowledge records a custodian acknowledgment. A duplicate is accepted
// without effect and leaves an operations-category audit entry.
func (s *Service) Acknowledge(ctx context.Context, holdID domain.HoldID, email string, method domain.AckMethod) (*hold.Hold, error) {
	ctx, done := s.startOp(ctx, "acknowledge", holdID)
	defer done()

	h, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, applied, err := h.Acknowledge(email, method, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		if !applied {
			return []audit.Entry{s.entry(ctx, holdID, audit.ActionCustodianAckDuplicate,
				fmt.Sprintf("duplicate acknowledgment from %s ignored", c.Email))}, nil
		}
		s.metrics.Acknowledgments.Inc()
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionCustodianAcknowledged,
			fmt.Sprintf("%s acknowledged via %s", c.Email, method))}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "custodian acknowledgment",
		slog.String("hold_id", holdID.String()),
		slog.String("custodian", email),
		slog.Int("compliance_rate", h.ComplianceRate))
	return h, nil
}

// MarkNonCompliant flags a custodian who missed the response window.
func (s *Service) MarkNonCompliant(ctx context.Context, holdID domain.HoldID, email, reason string) error {
	ctx, done := s.startOp(ctx, "mark_non_compliant", holdID)
	defer done()

	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, err := h.MarkNonCompliant(email, reason, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		detail := fmt.Sprintf("%s marked non-compliant", c.Email)
		if reason != "" {
			detail += ": " + reason
		}
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionCustodianNonCompliant, detail)}, nil
	})
	return err
}

// Escalate raises a non-compliant custodian and queues the escalation notice.
func (s *Service) Escalate(ctx context.Context, holdID domain.HoldID, email, escalateTo, reason string) error {
	ctx, done := s.startOp(ctx, "escalate", holdID)
	defer done()

	var msg notify.Message
	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, err := h.Escalate(email, escalateTo, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		detail := fmt.Sprintf("%s escalated to %s", c.Email, escalateTo)
		if reason != "" {
			detail += ": " + reason
		}
		msg = notify.Message{
			HoldID:         h.ID,
			RecipientEmail: escalateTo,
			RecipientName:  escalateTo,
			Channel:        notify.ChannelEmail,
			TemplateRef:    h.TemplateRef,
			Kind:           notify.KindEscalationNotice,
			Context: map[string]string{
				"hold_name": h.Name,
				"custodian": c.Email,
			},
		}
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionCustodianEscalated, detail)}, nil
	})
	if err != nil {
		return err
	}

	s.metrics.Escalations.Inc()
	s.enqueueAll(ctx, []notify.Message{msg})
	return nil
}

// AddCustodian appends a custodian to a live hold. On an active hold the
// new custodian is left Pending; notification is a separate, explicit step.
func (s *Service) AddCustodian(ctx context.Context, holdID domain.HoldID, params hold.CustodianParams) (*hold.Hold, error) {
	ctx, done := s.startOp(ctx, "add_custodian", holdID)
	defer done()

	return s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, err := h.AddCustodian(params, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionCustodianAdded,
			fmt.Sprintf("%s added to hold", c.Email))}, nil
	})
}

// Release releases custodians from the hold: everyone still held when
// emails is empty, otherwise the named subset.
func (s *Service) Release(ctx context.Context, holdID domain.HoldID, reason string, emails []string) (*hold.Hold, error) {
	ctx, done := s.startOp(ctx, "release", holdID)
	defer done()

	h, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		released, err := h.Release(emails, reason, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		var entries []audit.Entry
		for _, c := range released {
			entries = append(entries, s.entry(ctx, holdID, audit.ActionCustodianReleased,
				fmt.Sprintf("%s released: %s", c.Email, reason)))
		}
		switch h.Status {
		case domain.HoldStatusReleased:
			entries = append(entries, s.entry(ctx, holdID, audit.ActionHoldReleased, "hold fully released: "+reason))
		case domain.HoldStatusPartiallyReleased:
			entries = append(entries, s.entry(ctx, holdID, audit.ActionHoldPartiallyReleased,
				fmt.Sprintf("%d custodians released: %s", len(released), reason)))
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	if h.Status == domain.HoldStatusReleased {
		s.metrics.HoldsReleased.Inc()
	}
	s.logger.InfoContext(ctx, "hold release",
		slog.String("hold_id", holdID.String()),
		slog.String("status", string(h.Status)))
	return h, nil
}

// Expire applies the effective-window expiry policy to one hold.
func (s *Service) Expire(ctx context.Context, holdID domain.HoldID) error {
	ctx, done := s.startOp(ctx, "expire", holdID)
	defer done()

	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		if err := h.Expire(requestcontext.Now(ctx)); err != nil {
			return nil, err
		}
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionHoldExpired, "effective window lapsed")}, nil
	})
	return err
}

// RecordReminder bumps a custodian's reminder counter. The sweep calls this
// after a dispatch attempt was made, successful or not; a reminder that was
// never handed to a transport is not recorded.
func (s *Service) RecordReminder(ctx context.Context, holdID domain.HoldID, email string) error {
	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, err := h.RecordReminder(email, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		return []audit.Entry{{
			HoldID: holdID,
			Action: audit.ActionReminderRecorded,
			Actor:  "system",
			Detail: fmt.Sprintf("reminder %d for %s", c.ReminderCount, c.Email),
		}}, nil
	})
	return err
}

// RecordInterview stamps a custodian interview.
func (s *Service) RecordInterview(ctx context.Context, holdID domain.HoldID, email, notes string) error {
	ctx, done := s.startOp(ctx, "record_interview", holdID)
	defer done()

	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, err := h.RecordInterview(email, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		detail := fmt.Sprintf("interview recorded for %s", c.Email)
		if notes != "" {
			detail += ": " + notes
		}
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionInterviewRecorded, detail)}, nil
	})
	return err
}

// AttachEvidence links an opaque evidence reference to the hold.
func (s *Service) AttachEvidence(ctx context.Context, holdID domain.HoldID, ref domain.EvidenceRef) error {
	ctx, done := s.startOp(ctx, "attach_evidence", holdID)
	defer done()

	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		if err := h.AttachEvidence(ref, requestcontext.Now(ctx)); err != nil {
			return nil, err
		}
		return []audit.Entry{s.entry(ctx, holdID, audit.ActionEvidenceAttached, string(ref))}, nil
	})
	return err
}

// CorrectCustodian applies an exceptional post-release correction. The
// audit entry carries the justification and points at the sequence number
// being corrected; the justification is mandatory.
func (s *Service) CorrectCustodian(ctx context.Context, holdID domain.HoldID, email string, method domain.AckMethod, justification string, correctsSeq int64) error {
	ctx, done := s.startOp(ctx, "correct_custodian", holdID)
	defer done()

	if justification == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "a correction requires a justification")
	}

	_, err := s.mutate(ctx, holdID, func(ctx context.Context, h *hold.Hold) ([]audit.Entry, error) {
		c, err := h.Correct(email, method, requestcontext.Now(ctx))
		if err != nil {
			return nil, err
		}
		e := s.entry(ctx, holdID, audit.ActionCustodianCorrected,
			fmt.Sprintf("%s corrected to acknowledged: %s", c.Email, justification))
		e.CorrectsSeq = &correctsSeq
		return []audit.Entry{e}, nil
	})
	return err
}

// ComplianceSnapshot computes the point-in-time compliance view.
func (s *Service) ComplianceSnapshot(ctx context.Context, holdID domain.HoldID) (hold.Snapshot, error) {
	h, err := s.store.Get(ctx, holdID)
	if err != nil {
		return hold.Snapshot{}, mapStoreErr(err, holdID)
	}
	return h.ComplianceSnapshot(), nil
}

// AuditList returns the hold's trail, oldest first, optionally filtered.
func (s *Service) AuditList(ctx context.Context, holdID domain.HoldID, filter audit.Filter) ([]audit.Entry, error) {
	if _, err := s.store.Get(ctx, holdID); err != nil {
		return nil, mapStoreErr(err, holdID)
	}
	entries, err := s.trail.List(ctx, holdID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit read failure")
	}
	return entries, nil
}

func (s *Service) noticeMessage(h *hold.Hold, c *hold.Custodian, kind notify.Kind) notify.Message {
	return notify.Message{
		HoldID:         h.ID,
		RecipientEmail: c.Email,
		RecipientName:  c.DisplayName,
		Channel:        notify.ChannelEmail,
		TemplateRef:    h.TemplateRef,
		Kind:           kind,
		Context: map[string]string{
			"hold_name": h.Name,
			"case_ref":  string(h.CaseRef),
		},
	}
}

func (s *Service) enqueueAll(ctx context.Context, msgs []notify.Message) {
	for _, msg := range msgs {
		s.metrics.NotificationsRequested.Inc()
		if !s.notifier.Enqueue(msg) {
			s.logger.WarnContext(ctx, "notification queue full, delivery request dropped",
				slog.String("hold_id", msg.HoldID.String()),
				slog.String("recipient", msg.RecipientEmail),
				slog.String("kind", string(msg.Kind)))
		}
	}
}
