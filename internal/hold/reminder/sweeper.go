package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"holdright/internal/hold"
	"holdright/internal/notify"
	"holdright/internal/platform/metrics"
	"holdright/pkg/domain"
	"holdright/pkg/requestcontext"
)

// HoldSource lists the holds the sweep considers.
type HoldSource interface {
	List(ctx context.Context) ([]*hold.Hold, error)
}

// Recorder persists sweep outcomes back onto the ledger.
type Recorder interface {
	RecordReminder(ctx context.Context, holdID domain.HoldID, email string) error
	Expire(ctx context.Context, holdID domain.HoldID) error
}

// Enqueuer hands reminder messages to the notification pipeline.
type Enqueuer interface {
	Enqueue(msg notify.Message) bool
}

// Sweeper walks every hold on a schedule, queues reminders for custodians
// whose cadence interval has lapsed, and expires holds past their effective
// window. The dedupe marker keeps a rescheduled or doubled sweep from
// re-sending the same reminder within one interval.
type Sweeper struct {
	source  HoldSource
	rec     Recorder
	queue   Enqueuer
	dedupe  notify.Deduper
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewSweeper(source HoldSource, rec Recorder, queue Enqueuer, dedupe notify.Deduper, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		source:  source,
		rec:     rec,
		queue:   queue,
		dedupe:  dedupe,
		metrics: m,
		logger:  logger,
	}
}

// Sweep runs one pass at the time carried on ctx. Failures on one hold are
// logged and do not stop the rest of the pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := requestcontext.Now(ctx)
	holds, err := s.source.List(ctx)
	if err != nil {
		return err
	}

	for _, h := range holds {
		s.expireIfLapsed(ctx, h, now)
		for _, c := range Due(h, now) {
			s.remind(ctx, h, c)
		}
	}
	return nil
}

func (s *Sweeper) expireIfLapsed(ctx context.Context, h *hold.Hold, now time.Time) {
	if h.EffectiveUntil == nil || now.Before(*h.EffectiveUntil) {
		return
	}
	switch h.Status {
	case domain.HoldStatusActive, domain.HoldStatusPartiallyReleased:
	default:
		return
	}
	if err := s.rec.Expire(ctx, h.ID); err != nil {
		s.logger.ErrorContext(ctx, "hold expiry failed",
			slog.String("hold_id", h.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "hold expired", slog.String("hold_id", h.ID.String()))
}

func (s *Sweeper) remind(ctx context.Context, h *hold.Hold, c *hold.Custodian) {
	key := notify.DedupeKey(h.ID, c.Email, notify.KindReminder)
	acquired, err := s.dedupe.Acquire(ctx, key, h.Cadence.Interval())
	if err != nil {
		s.logger.ErrorContext(ctx, "reminder dedupe check failed",
			slog.String("hold_id", h.ID.String()),
			slog.String("custodian", c.Email),
			slog.String("error", err.Error()))
		return
	}
	if !acquired {
		return
	}

	msg := notify.Message{
		HoldID:         h.ID,
		RecipientEmail: c.Email,
		RecipientName:  c.DisplayName,
		Channel:        notify.ChannelEmail,
		TemplateRef:    h.TemplateRef,
		Kind:           notify.KindReminder,
		Context: map[string]string{
			"hold_name": h.Name,
			"case_ref":  string(h.CaseRef),
		},
	}
	if !s.queue.Enqueue(msg) {
		s.logger.WarnContext(ctx, "notification queue full, reminder dropped",
			slog.String("hold_id", h.ID.String()),
			slog.String("custodian", c.Email))
		return
	}

	// The reminder counts once it was handed to the pipeline, regardless
	// of delivery outcome. Delivery failures surface in the audit trail
	// through the dispatch feedback path.
	if err := s.rec.RecordReminder(ctx, h.ID, c.Email); err != nil {
		s.logger.ErrorContext(ctx, "reminder bookkeeping failed",
			slog.String("hold_id", h.ID.String()),
			slog.String("custodian", c.Email),
			slog.String("error", err.Error()))
		return
	}
	s.metrics.RemindersDispatched.Inc()
}

// Schedule registers the sweep on a cron runner using the given spec
// (standard five-field cron syntax).
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx := requestcontext.WithTime(context.Background(), time.Now().UTC())
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("reminder sweep failed", slog.String("error", err.Error()))
		}
	})
}
