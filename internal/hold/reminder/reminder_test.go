package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdright/internal/hold"
	"holdright/pkg/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func weeklyHold(t *testing.T, custodians ...string) *hold.Hold {
	t.Helper()
	params := hold.NewHoldParams{
		Name:    "Project Meridian",
		CaseRef: "CASE-2026-0142",
		Cadence: domain.CadenceWeekly,
	}
	for _, addr := range custodians {
		params.Custodians = append(params.Custodians, hold.CustodianParams{Email: addr})
	}
	h, err := hold.New(domain.NewHoldID(), params, t0)
	require.NoError(t, err)
	require.NoError(t, h.Issue(t0))
	return h
}

func emails(due []*hold.Custodian) []string {
	out := make([]string, len(due))
	for i, c := range due {
		out[i] = c.Email
	}
	return out
}

func TestDue_WeeklyCadence(t *testing.T) {
	h := weeklyHold(t, "alice@corp.example")
	_, err := h.NotifyCustodian("alice@corp.example", t0)
	require.NoError(t, err)

	assert.Empty(t, Due(h, t0.Add(6*day)), "interval not yet elapsed")
	assert.Equal(t, []string{"alice@corp.example"}, emails(Due(h, t0.Add(7*day))))

	// Recording the reminder pushes the next one out a full interval.
	_, err = h.RecordReminder("alice@corp.example", t0.Add(7*day))
	require.NoError(t, err)
	assert.Empty(t, Due(h, t0.Add(13*day)))
	assert.Equal(t, []string{"alice@corp.example"}, emails(Due(h, t0.Add(14*day))))
}

func TestDue_SkipsSettledCustodians(t *testing.T) {
	h := weeklyHold(t, "alice@corp.example", "bob@corp.example", "carol@corp.example", "dave@corp.example")
	for _, addr := range []string{"alice@corp.example", "bob@corp.example", "carol@corp.example"} {
		_, err := h.NotifyCustodian(addr, t0)
		require.NoError(t, err)
	}

	// alice acknowledged, bob released, dave never notified.
	_, _, err := h.Acknowledge("alice@corp.example", domain.AckMethodEmail, t0.Add(day))
	require.NoError(t, err)
	_, err = h.Release([]string{"bob@corp.example"}, "left the company", t0.Add(day))
	require.NoError(t, err)

	assert.Equal(t, []string{"carol@corp.example"}, emails(Due(h, t0.Add(7*day))))
}

func TestDue_NonCompliantStillReminded(t *testing.T) {
	h := weeklyHold(t, "alice@corp.example")
	_, err := h.NotifyCustodian("alice@corp.example", t0)
	require.NoError(t, err)
	_, err = h.MarkNonCompliant("alice@corp.example", "no response", t0.Add(10*day))
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@corp.example"}, emails(Due(h, t0.Add(14*day))))

	// Escalated custodians leave the reminder loop; the escalation contact
	// owns follow-up from there.
	_, err = h.Escalate("alice@corp.example", "legal-ops@corp.example", t0.Add(15*day))
	require.NoError(t, err)
	assert.Empty(t, Due(h, t0.Add(30*day)))
}

func TestDue_CadenceNone(t *testing.T) {
	params := hold.NewHoldParams{
		Name:       "Project Meridian",
		CaseRef:    "CASE-2026-0142",
		Cadence:    domain.CadenceNone,
		Custodians: []hold.CustodianParams{{Email: "alice@corp.example"}},
	}
	h, err := hold.New(domain.NewHoldID(), params, t0)
	require.NoError(t, err)
	require.NoError(t, h.Issue(t0))
	_, err = h.NotifyCustodian("alice@corp.example", t0)
	require.NoError(t, err)

	assert.Empty(t, Due(h, t0.Add(365*day)))
}

func TestDue_HoldStatusGates(t *testing.T) {
	draft := hold.NewHoldParams{
		Name:       "Project Meridian",
		CaseRef:    "CASE-2026-0142",
		Cadence:    domain.CadenceWeekly,
		Custodians: []hold.CustodianParams{{Email: "alice@corp.example"}},
	}
	h, err := hold.New(domain.NewHoldID(), draft, t0)
	require.NoError(t, err)
	assert.Empty(t, Due(h, t0.Add(30*day)), "draft holds never remind")

	h = weeklyHold(t, "alice@corp.example")
	_, err = h.NotifyCustodian("alice@corp.example", t0)
	require.NoError(t, err)
	_, err = h.Release(nil, "matter settled", t0.Add(day))
	require.NoError(t, err)
	assert.Empty(t, Due(h, t0.Add(30*day)), "released holds never remind")
}

func TestDue_PartiallyReleasedHoldKeepsReminding(t *testing.T) {
	h := weeklyHold(t, "alice@corp.example", "bob@corp.example")
	for _, addr := range []string{"alice@corp.example", "bob@corp.example"} {
		_, err := h.NotifyCustodian(addr, t0)
		require.NoError(t, err)
	}
	_, err := h.Release([]string{"alice@corp.example"}, "left the company", t0.Add(day))
	require.NoError(t, err)

	assert.Equal(t, []string{"bob@corp.example"}, emails(Due(h, t0.Add(7*day))))
}
