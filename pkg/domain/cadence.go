package domain

import (
	"time"

	dErrors "holdright/pkg/domain-errors"
)

// ReminderCadence is how often unacknowledged custodians are re-contacted.
// CadenceNone is a valid configuration meaning reminders never fire.
type ReminderCadence string

const (
	CadenceNone      ReminderCadence = "none"
	CadenceWeekly    ReminderCadence = "weekly"
	CadenceBiWeekly  ReminderCadence = "biweekly"
	CadenceMonthly   ReminderCadence = "monthly"
	CadenceQuarterly ReminderCadence = "quarterly"
)

var cadenceIntervals = map[ReminderCadence]time.Duration{
	CadenceNone:      0,
	CadenceWeekly:    7 * 24 * time.Hour,
	CadenceBiWeekly:  14 * 24 * time.Hour,
	CadenceMonthly:   30 * 24 * time.Hour,
	CadenceQuarterly: 90 * 24 * time.Hour,
}

// ParseCadence constructs a ReminderCadence from external input.
func ParseCadence(s string) (ReminderCadence, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reminder cadence cannot be empty")
	}
	c := ReminderCadence(s)
	if _, ok := cadenceIntervals[c]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid reminder cadence: "+s)
	}
	return c, nil
}

// IsValid checks membership in the closed cadence set.
func (c ReminderCadence) IsValid() bool {
	_, ok := cadenceIntervals[c]
	return ok
}

// Interval returns the reminder spacing. Zero means reminders never fire.
func (c ReminderCadence) Interval() time.Duration { return cadenceIntervals[c] }
