package notify

import (
	"context"
	"time"
)

// QuietHours is a daily window during which delivery is deferred, expressed
// in whole hours of the recipient's local time. An overnight window
// (StartHour > EndHour, e.g. 22 to 6) wraps midnight. StartHour == EndHour
// means no quiet window.
type QuietHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

func (q QuietHours) location() *time.Location {
	if q.Location == nil {
		return time.UTC
	}
	return q.Location
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if q.StartHour == q.EndHour {
		return false
	}
	h := t.In(q.location()).Hour()
	if q.StartHour < q.EndHour {
		return h >= q.StartHour && h < q.EndHour
	}
	// overnight wrap
	return h >= q.StartHour || h < q.EndHour
}

// NextAllowed returns the earliest instant at or after t outside the quiet
// window. Returns t unchanged when t is already deliverable.
func (q QuietHours) NextAllowed(t time.Time) time.Time {
	if !q.Contains(t) {
		return t
	}
	local := t.In(q.location())
	end := time.Date(local.Year(), local.Month(), local.Day(), q.EndHour, 0, 0, 0, q.location())
	if !end.After(local) {
		// overnight window evaluated before midnight: the window ends tomorrow
		end = end.Add(24 * time.Hour)
	}
	return end
}

// Preferences capture per-recipient delivery settings.
type Preferences struct {
	Channel    Channel
	QuietHours *QuietHours
}

// PreferenceSource resolves delivery preferences per recipient.
type PreferenceSource interface {
	For(ctx context.Context, email string) (Preferences, error)
}

// StaticPreferences is a map-backed PreferenceSource with a default.
type StaticPreferences struct {
	Default Preferences
	ByEmail map[string]Preferences
}

// For returns the recipient's preferences, falling back to the default.
func (s StaticPreferences) For(_ context.Context, email string) (Preferences, error) {
	if p, ok := s.ByEmail[email]; ok {
		return p, nil
	}
	return s.Default, nil
}
