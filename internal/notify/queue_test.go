package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdright/internal/audit"
	"holdright/internal/platform/metrics"
	id "holdright/pkg/domain"
	"holdright/pkg/requestcontext"
)

// stubDispatcher records messages and returns a scripted outcome.
type stubDispatcher struct {
	mu     sync.Mutex
	seen   []Message
	result Result
	err    error
}

func (d *stubDispatcher) Dispatch(_ context.Context, msg Message) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, msg)
	return d.result, d.err
}

func (d *stubDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

var testMetrics = metrics.New()

func newTestQueue(d Dispatcher, prefs PreferenceSource, inbox chan audit.Entry) *Queue {
	return NewQueue(d, prefs, inbox, 8, time.Second, slog.Default(), testMetrics)
}

func TestQueue_DispatchOutcomeFeedsAudit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	holdID := id.NewHoldID()

	t.Run("delivery appends informational entry", func(t *testing.T) {
		dispatcher := &stubDispatcher{result: Result{Delivered: true}}
		inbox := make(chan audit.Entry, 4)
		q := newTestQueue(dispatcher, StaticPreferences{}, inbox)
		go q.Run(ctx)

		require.True(t, q.Enqueue(Message{HoldID: holdID, RecipientEmail: "a@x.com", Channel: ChannelEmail, Kind: KindInitialNotice}))

		select {
		case entry := <-inbox:
			assert.Equal(t, audit.ActionNotificationDispatched, entry.Action)
			assert.Contains(t, entry.Detail, "a@x.com")
		case <-time.After(time.Second):
			t.Fatal("no audit entry produced")
		}
	})

	t.Run("dispatch failure is informational, not fatal", func(t *testing.T) {
		dispatcher := &stubDispatcher{err: errors.New("smtp unreachable")}
		inbox := make(chan audit.Entry, 4)
		q := newTestQueue(dispatcher, StaticPreferences{}, inbox)
		go q.Run(ctx)

		require.True(t, q.Enqueue(Message{HoldID: holdID, RecipientEmail: "b@x.com", Channel: ChannelEmail, Kind: KindReminder}))

		select {
		case entry := <-inbox:
			assert.Equal(t, audit.ActionNotificationDispatchFault, entry.Action)
			assert.Contains(t, entry.Detail, "smtp unreachable")
		case <-time.After(time.Second):
			t.Fatal("no audit entry produced")
		}
	})
}

func TestQueue_HonorsPreferredChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := &stubDispatcher{result: Result{Delivered: true}}
	inbox := make(chan audit.Entry, 4)
	prefs := StaticPreferences{
		Default: Preferences{Channel: ChannelEmail},
		ByEmail: map[string]Preferences{"c@x.com": {Channel: ChannelSMS}},
	}
	q := newTestQueue(dispatcher, prefs, inbox)
	go q.Run(ctx)

	require.True(t, q.Enqueue(Message{HoldID: id.NewHoldID(), RecipientEmail: "c@x.com", Channel: ChannelEmail}))

	require.Eventually(t, func() bool { return dispatcher.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, ChannelSMS, dispatcher.seen[0].Channel)
}

func TestQueue_DefersDuringQuietHours(t *testing.T) {
	// Freeze the worker's clock inside and outside a 22:00-06:00 window.
	dispatcher := &stubDispatcher{result: Result{Delivered: true}}
	inbox := make(chan audit.Entry, 4)
	prefs := StaticPreferences{
		Default: Preferences{
			Channel:    ChannelEmail,
			QuietHours: &QuietHours{StartHour: 22, EndHour: 6},
		},
	}
	q := newTestQueue(dispatcher, prefs, inbox)

	t.Run("inside the window nothing dispatches", func(t *testing.T) {
		ctx, cancel := context.WithCancel(
			requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)))
		defer cancel()
		go q.Run(ctx)

		require.True(t, q.Enqueue(Message{HoldID: id.NewHoldID(), RecipientEmail: "a@x.com", Kind: KindReminder}))

		assert.Never(t, func() bool { return dispatcher.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
		cancel()
	})

	t.Run("outside the window dispatch proceeds", func(t *testing.T) {
		ctx, cancel := context.WithCancel(
			requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
		defer cancel()
		go q.Run(ctx)

		require.True(t, q.Enqueue(Message{HoldID: id.NewHoldID(), RecipientEmail: "b@x.com", Kind: KindReminder}))

		require.Eventually(t, func() bool { return dispatcher.count() == 1 }, time.Second, 10*time.Millisecond)
	})
}

func TestQueue_EnqueueFullReportsFalse(t *testing.T) {
	dispatcher := &stubDispatcher{result: Result{Delivered: true}}
	inbox := make(chan audit.Entry, 1)
	q := NewQueue(dispatcher, StaticPreferences{}, inbox, 1, time.Second, slog.Default(), testMetrics)
	// No worker running: first enqueue fills the buffer, second must refuse.
	assert.True(t, q.Enqueue(Message{RecipientEmail: "a@x.com"}))
	assert.False(t, q.Enqueue(Message{RecipientEmail: "b@x.com"}))
}

func TestDedupeKey(t *testing.T) {
	holdID := id.NewHoldID()
	k1 := DedupeKey(holdID, "a@x.com", KindReminder)
	k2 := DedupeKey(holdID, "a@x.com", KindInitialNotice)
	assert.NotEqual(t, k1, k2)
	assert.Contains(t, k1, holdID.String())
}
