// Package reminder decides which custodians are owed a reminder and drives
// the periodic sweep that sends them.
package reminder

import (
	"time"

	"holdright/internal/hold"
	"holdright/pkg/domain"
)

// Due returns the custodians on h that are owed a reminder at now.
//
// A custodian is due when the hold still expects an acknowledgment from
// them (Notified or NonCompliant, not released), the hold's cadence fires
// at all, and a full cadence interval has passed since the last reminder,
// or since the initial notice when no reminder was ever sent. The decision
// is pure; recording the reminder is the caller's job, after a dispatch
// attempt was actually made.
func Due(h *hold.Hold, now time.Time) []*hold.Custodian {
	switch h.Status {
	case domain.HoldStatusActive, domain.HoldStatusPartiallyReleased:
	default:
		return nil
	}
	interval := h.Cadence.Interval()
	if interval == 0 {
		return nil
	}

	var due []*hold.Custodian
	for _, c := range h.Custodians {
		if c.Released {
			continue
		}
		switch c.State {
		case domain.CustodianStateNotified, domain.CustodianStateNonCompliant:
		default:
			continue
		}
		ref := c.NotifiedAt
		if c.LastReminderAt != nil {
			ref = c.LastReminderAt
		}
		if ref == nil {
			continue
		}
		if !now.Before(ref.Add(interval)) {
			due = append(due, c)
		}
	}
	return due
}
