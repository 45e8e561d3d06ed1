package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "holdright/pkg/domain"
)

func newTestTrail() *Trail {
	return NewTrail(NewInMemoryStore(), slog.Default())
}

func TestTrail_AppendAssignsSequence(t *testing.T) {
	ctx := context.Background()
	trail := newTestTrail()
	holdID := id.NewHoldID()

	first, err := trail.Append(ctx, Entry{HoldID: holdID, Action: ActionHoldCreated, Actor: "ops@firm.example"})
	require.NoError(t, err)
	second, err := trail.Append(ctx, Entry{HoldID: holdID, Action: ActionHoldIssued, Actor: "ops@firm.example"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())

	// Sequences are per hold, not global.
	otherHold := id.NewHoldID()
	other, err := trail.Append(ctx, Entry{HoldID: otherHold, Action: ActionHoldCreated})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Seq)
}

func TestTrail_AppendOnly(t *testing.T) {
	ctx := context.Background()
	trail := newTestTrail()
	holdID := id.NewHoldID()

	appended, err := trail.Append(ctx, Entry{HoldID: holdID, Action: ActionHoldCreated, Detail: "original"})
	require.NoError(t, err)

	before, err := trail.List(ctx, holdID, Filter{})
	require.NoError(t, err)
	require.Len(t, before, 1)

	// Mutating what List returned must not touch stored history.
	before[0].Detail = "tampered"

	after, err := trail.List(ctx, holdID, Filter{})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "original", after[0].Detail)
	assert.Equal(t, appended.ID, after[0].ID)
}

func TestTrail_QueryFilter(t *testing.T) {
	ctx := context.Background()
	trail := newTestTrail()
	holdID := id.NewHoldID()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := trail.Append(ctx, Entry{HoldID: holdID, Action: ActionHoldCreated, Actor: "alice", Timestamp: base})
	require.NoError(t, err)
	_, err = trail.Append(ctx, Entry{HoldID: holdID, Action: ActionCustodianNotified, Actor: "bob", Timestamp: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = trail.Append(ctx, Entry{HoldID: holdID, Action: ActionCustodianNotified, Actor: "alice", Timestamp: base.Add(2 * time.Hour)})
	require.NoError(t, err)

	t.Run("by actor", func(t *testing.T) {
		got, err := trail.List(ctx, holdID, Filter{Actor: "alice"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by action", func(t *testing.T) {
		got, err := trail.List(ctx, holdID, Filter{Action: ActionCustodianNotified})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by time range", func(t *testing.T) {
		got, err := trail.List(ctx, holdID, Filter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "bob", got[0].Actor)
	})

	t.Run("ascending sequence order", func(t *testing.T) {
		got, err := trail.List(ctx, holdID, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i := 1; i < len(got); i++ {
			assert.Greater(t, got[i].Seq, got[i-1].Seq)
		}
	})
}

func TestTrail_QueryIsRestartable(t *testing.T) {
	ctx := context.Background()
	trail := newTestTrail()
	holdID := id.NewHoldID()

	_, err := trail.Append(ctx, Entry{HoldID: holdID, Action: ActionHoldCreated})
	require.NoError(t, err)

	seq := trail.Query(ctx, holdID, Filter{})

	var firstPass, secondPass []int64
	for e := range seq {
		firstPass = append(firstPass, e.Seq)
	}
	for e := range seq {
		secondPass = append(secondPass, e.Seq)
	}
	assert.Equal(t, firstPass, secondPass)

	// New appends show up on the next run of the same query.
	_, err = trail.Append(ctx, Entry{HoldID: holdID, Action: ActionHoldIssued})
	require.NoError(t, err)
	var thirdPass []int64
	for e := range seq {
		thirdPass = append(thirdPass, e.Seq)
	}
	assert.Len(t, thirdPass, 2)
}

func TestWorker_DrainsInbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trail := newTestTrail()
	holdID := id.NewHoldID()
	inbox := make(chan Entry, 4)
	worker := NewWorker(trail, inbox, slog.Default())

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	inbox <- Entry{HoldID: holdID, Action: ActionNotificationDispatched, Detail: "delivered to a@x.com"}
	inbox <- Entry{HoldID: holdID, Action: ActionNotificationDispatchFault, Detail: "smtp timeout"}

	require.Eventually(t, func() bool {
		entries, err := trail.List(ctx, holdID, Filter{})
		return err == nil && len(entries) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAction_Category(t *testing.T) {
	assert.Equal(t, CategoryCompliance, ActionCustodianAcknowledged.Category())
	assert.Equal(t, CategoryOperations, ActionReminderRecorded.Category())
	assert.Equal(t, CategoryOperations, Action("unknown_action").Category())
}
