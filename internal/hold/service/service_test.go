package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdright/internal/audit"
	"holdright/internal/hold"
	"holdright/internal/hold/store"
	"holdright/internal/notify"
	"holdright/internal/platform/metrics"
	"holdright/pkg/domain"
	dErrors "holdright/pkg/domain-errors"
	"holdright/pkg/requestcontext"
)

// One metrics instance per test binary; promauto registers globally.
var testMetrics = metrics.New()

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type stubEnqueuer struct {
	mu   sync.Mutex
	msgs []notify.Message
	full bool
}

func (e *stubEnqueuer) Enqueue(msg notify.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.full {
		return false
	}
	e.msgs = append(e.msgs, msg)
	return true
}

func (e *stubEnqueuer) messages() []notify.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notify.Message(nil), e.msgs...)
}

type fixture struct {
	svc      *Service
	enqueuer *stubEnqueuer
	trail    *audit.Trail
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	enqueuer := &stubEnqueuer{}
	trail := audit.NewTrail(audit.NewInMemoryStore(), slog.Default())
	svc := NewService(store.NewInMemoryStore(), NewShardedTx(nil), trail, enqueuer, testMetrics, slog.Default())
	return &fixture{svc: svc, enqueuer: enqueuer, trail: trail}
}

func testCtx(actor string, at time.Time) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	return requestcontext.WithTime(ctx, at)
}

func holdParams(custodians ...string) hold.NewHoldParams {
	p := hold.NewHoldParams{
		Name:    "Project Meridian",
		CaseRef: "CASE-2026-0142",
		Cadence: domain.CadenceWeekly,
	}
	for _, addr := range custodians {
		p.Custodians = append(p.Custodians, hold.CustodianParams{Email: addr})
	}
	return p
}

func (f *fixture) createIssued(t *testing.T, custodians ...string) *hold.Hold {
	t.Helper()
	ctx := testCtx("counsel@firm.example", t0)
	h, err := f.svc.Create(ctx, holdParams(custodians...))
	require.NoError(t, err)
	h, err = f.svc.Issue(ctx, h.ID)
	require.NoError(t, err)
	return h
}

func (f *fixture) actions(t *testing.T, holdID domain.HoldID) []audit.Action {
	t.Helper()
	entries, err := f.trail.List(context.Background(), holdID, audit.Filter{})
	require.NoError(t, err)
	out := make([]audit.Action, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestLifecycle_CreateIssueNotifyAcknowledge(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx("counsel@firm.example", t0)

	h, err := f.svc.Create(ctx, holdParams("alice@corp.example", "bob@corp.example"))
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusDraft, h.Status)

	h, err = f.svc.Issue(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusActive, h.Status)

	outcomes, err := f.svc.NotifyAll(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Notified)
		assert.NoError(t, o.Err)
	}
	assert.Len(t, f.enqueuer.messages(), 2, "initial notices queued for both custodians")

	ackCtx := testCtx("alice@corp.example", t0.Add(time.Hour))
	h, err = f.svc.Acknowledge(ackCtx, h.ID, "alice@corp.example", domain.AckMethodEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, h.AcknowledgedCustodians)
	assert.Equal(t, 50, h.ComplianceRate)

	// The trail records every step in order with a gapless sequence.
	actions := f.actions(t, h.ID)
	assert.Equal(t, []audit.Action{
		audit.ActionHoldCreated,
		audit.ActionHoldIssued,
		audit.ActionCustodianNotified,
		audit.ActionCustodianNotified,
		audit.ActionCustodianAcknowledged,
	}, actions)

	entries, err := f.trail.List(context.Background(), h.ID, audit.Filter{})
	require.NoError(t, err)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, "counsel@firm.example", entries[0].Actor)
	assert.Equal(t, "alice@corp.example", entries[4].Actor)
}

func TestCreate_InvalidParams(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx("counsel@firm.example", t0)

	params := holdParams("alice@corp.example")
	params.Name = ""
	_, err := f.svc.Create(ctx, params)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestNotifyAll_PartialFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "alice@corp.example", "bob@corp.example")
	ctx := testCtx("counsel@firm.example", t0)

	// Notify alice individually, then a bulk notify: bob is the only
	// pending custodian left and alice is skipped rather than failed.
	require.NoError(t, f.svc.NotifyCustodian(ctx, h.ID, "alice@corp.example"))

	outcomes, err := f.svc.NotifyAll(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "bob@corp.example", outcomes[0].Email)
	assert.True(t, outcomes[0].Notified)

	_, err = f.svc.NotifyAll(ctx, h.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition), "no pending custodians remain")
}

func TestAcknowledge_DuplicateIsAuditedNoOp(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "alice@corp.example")
	ctx := testCtx("counsel@firm.example", t0)
	require.NoError(t, f.svc.NotifyCustodian(ctx, h.ID, "alice@corp.example"))

	_, err := f.svc.Acknowledge(ctx, h.ID, "alice@corp.example", domain.AckMethodEmail)
	require.NoError(t, err)
	got, err := f.svc.Acknowledge(ctx, h.ID, "alice@corp.example", domain.AckMethodPhone)
	require.NoError(t, err)

	c := got.Custodian("alice@corp.example")
	assert.Equal(t, domain.AckMethodEmail, c.AckMethod, "original acknowledgment untouched")

	actions := f.actions(t, h.ID)
	assert.Equal(t, audit.ActionCustodianAcknowledged, actions[len(actions)-2])
	assert.Equal(t, audit.ActionCustodianAckDuplicate, actions[len(actions)-1])
}

func TestEscalationPath(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "alice@corp.example")
	ctx := testCtx("counsel@firm.example", t0)
	require.NoError(t, f.svc.NotifyCustodian(ctx, h.ID, "alice@corp.example"))

	later := testCtx("counsel@firm.example", t0.Add(14*24*time.Hour))
	require.NoError(t, f.svc.MarkNonCompliant(later, h.ID, "alice@corp.example", "no response"))
	require.NoError(t, f.svc.Escalate(later, h.ID, "alice@corp.example", "legal-ops@corp.example", "second notice ignored"))

	msgs := f.enqueuer.messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, notify.KindEscalationNotice, last.Kind)
	assert.Equal(t, "legal-ops@corp.example", last.RecipientEmail)

	// The escalated custodian can still acknowledge.
	h2, err := f.svc.Acknowledge(later, h.ID, "alice@corp.example", domain.AckMethodInPerson)
	require.NoError(t, err)
	assert.Equal(t, 100, h2.ComplianceRate)
}

func TestRelease_SubsetThenBlanket(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "alice@corp.example", "bob@corp.example")
	ctx := testCtx("counsel@firm.example", t0)

	h2, err := f.svc.Release(ctx, h.ID, "custodian left the company", []string{"alice@corp.example"})
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusPartiallyReleased, h2.Status)

	h3, err := f.svc.Release(ctx, h.ID, "matter settled", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusReleased, h3.Status)

	_, err = f.svc.Release(ctx, h.ID, "again", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyReleased))

	err = f.svc.NotifyCustodian(ctx, h.ID, "bob@corp.example")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyReleased))

	actions := f.actions(t, h.ID)
	assert.Contains(t, actions, audit.ActionHoldPartiallyReleased)
	assert.Equal(t, audit.ActionHoldReleased, actions[len(actions)-1])
}

func TestRelease_FailedMutationLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "alice@corp.example")
	ctx := testCtx("counsel@firm.example", t0)

	before := f.actions(t, h.ID)
	_, err := f.svc.Release(ctx, h.ID, "", []string{"nobody@corp.example"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// A rejected release writes neither state nor audit entries.
	assert.Equal(t, before, f.actions(t, h.ID))
	got, err := f.svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusActive, got.Status)
}

func TestCorrectCustodian_AfterRelease(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "alice@corp.example")
	ctx := testCtx("counsel@firm.example", t0)
	require.NoError(t, f.svc.NotifyCustodian(ctx, h.ID, "alice@corp.example"))
	_, err := f.svc.Release(ctx, h.ID, "matter settled", nil)
	require.NoError(t, err)

	err = f.svc.CorrectCustodian(ctx, h.ID, "alice@corp.example", domain.AckMethodInPerson, "", 3)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "justification is mandatory")

	err = f.svc.CorrectCustodian(ctx, h.ID, "alice@corp.example", domain.AckMethodInPerson,
		"signed acknowledgment form surfaced during offboarding", 3)
	require.NoError(t, err)

	entries, err := f.trail.List(context.Background(), h.ID, audit.Filter{Action: audit.ActionCustodianCorrected})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].CorrectsSeq)
	assert.Equal(t, int64(3), *entries[0].CorrectsSeq)
}

func TestRecordReminder(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "alice@corp.example")
	ctx := testCtx("counsel@firm.example", t0)
	require.NoError(t, f.svc.NotifyCustodian(ctx, h.ID, "alice@corp.example"))

	later := testCtx("system", t0.Add(7*24*time.Hour))
	require.NoError(t, f.svc.RecordReminder(later, h.ID, "alice@corp.example"))

	got, err := f.svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Custodian("alice@corp.example").ReminderCount)

	entries, err := f.trail.List(context.Background(), h.ID, audit.Filter{Action: audit.ActionReminderRecorded})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0].Actor)
}

func TestExpire(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx("counsel@firm.example", t0)
	until := t0.Add(30 * 24 * time.Hour)
	params := holdParams("alice@corp.example")
	params.EffectiveUntil = &until

	h, err := f.svc.Create(ctx, params)
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, h.ID)
	require.NoError(t, err)

	err = f.svc.Expire(ctx, h.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	afterWindow := testCtx("system", until.Add(time.Hour))
	require.NoError(t, f.svc.Expire(afterWindow, h.ID))

	got, err := f.svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusExpired, got.Status)
}

func TestComplianceSnapshot(t *testing.T) {
	f := newFixture(t)
	h := f.createIssued(t, "a@corp.example", "b@corp.example", "c@corp.example")
	ctx := testCtx("counsel@firm.example", t0)

	_, err := f.svc.NotifyAll(ctx, h.ID)
	require.NoError(t, err)
	_, err = f.svc.Acknowledge(ctx, h.ID, "a@corp.example", domain.AckMethodEmail)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkNonCompliant(ctx, h.ID, "b@corp.example", "no response"))

	snap, err := f.svc.ComplianceSnapshot(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalCustodians)
	assert.Equal(t, 1, snap.AcknowledgedCustodians)
	assert.Equal(t, 1, snap.NonCompliant)
	assert.Equal(t, 33, snap.ComplianceRate)
}

func TestUnknownHold(t *testing.T) {
	f := newFixture(t)
	ctx := testCtx("counsel@firm.example", t0)

	_, err := f.svc.Issue(ctx, domain.NewHoldID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = f.svc.ComplianceSnapshot(ctx, domain.NewHoldID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// Concurrent acknowledgments on one hold must not lose updates: the final
// counters reflect every custodian exactly once.
func TestAcknowledge_Concurrent(t *testing.T) {
	f := newFixture(t)
	custodians := make([]string, 20)
	for i := range custodians {
		custodians[i] = string(rune('a'+i)) + "@corp.example"
	}
	h := f.createIssued(t, custodians...)
	ctx := testCtx("counsel@firm.example", t0)
	_, err := f.svc.NotifyAll(ctx, h.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, addr := range custodians {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ackCtx := testCtx(addr, t0.Add(time.Hour))
			_, err := f.svc.Acknowledge(ackCtx, h.ID, addr, domain.AckMethodEmail)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.AcknowledgedCustodians)
	assert.Equal(t, 100, got.ComplianceRate)

	entries, err := f.trail.List(context.Background(), h.ID, audit.Filter{Action: audit.ActionCustodianAcknowledged})
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
