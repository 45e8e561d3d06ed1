package audit

import (
	"time"

	"github.com/google/uuid"

	id "holdright/pkg/domain"
)

// Category classifies audit entries by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type Category string

const (
	// CategoryCompliance covers entries with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: hold issuance, acknowledgments, releases, corrections.
	CategoryCompliance Category = "compliance"

	// CategoryOperations covers entries useful for operational visibility.
	// These can be sampled or aggregated with shorter retention.
	// Examples: dispatch outcomes, reminder records, duplicate acks.
	CategoryOperations Category = "operations"
)

// Entry is one immutable record in a hold's audit trail. Entries are never
// edited or removed; corrections are new entries referencing the sequence
// number being corrected.
type Entry struct {
	ID        uuid.UUID
	HoldID    id.HoldID
	// Seq is assigned by the store at append time and is total within a
	// hold: re-reads always yield the same ascending order.
	Seq       int64
	Action    Action
	Actor     string
	Timestamp time.Time
	Detail    string
	// CorrectsSeq references the entry being corrected, when this entry is
	// an audit-visible exceptional correction.
	CorrectsSeq *int64
}

// Action names the state change or fact an entry records.
type Action string

const (
	ActionHoldCreated           Action = "hold_created"
	ActionHoldIssued            Action = "hold_issued"
	ActionHoldReleased          Action = "hold_released"
	ActionHoldPartiallyReleased Action = "hold_partially_released"
	ActionHoldExpired           Action = "hold_expired"

	ActionCustodianAdded        Action = "custodian_added"
	ActionCustodianNotified     Action = "custodian_notified"
	ActionCustodianAcknowledged Action = "custodian_acknowledged"
	ActionCustodianAckDuplicate Action = "custodian_ack_duplicate"
	ActionCustodianNonCompliant Action = "custodian_marked_non_compliant"
	ActionCustodianEscalated    Action = "custodian_escalated"
	ActionCustodianReleased     Action = "custodian_released"
	ActionCustodianCorrected    Action = "custodian_corrected"

	ActionReminderRecorded  Action = "reminder_recorded"
	ActionInterviewRecorded Action = "interview_recorded"
	ActionEvidenceAttached  Action = "evidence_attached"

	ActionNotificationDispatched    Action = "notification_dispatched"
	ActionNotificationDispatchFault Action = "notification_dispatch_failed"
)

// actionCategories maps each action to its category.
// Compliance: legal/regulatory significance, long retention required.
// Operations: visibility records, can be sampled.
var actionCategories = map[Action]Category{
	ActionHoldCreated:           CategoryCompliance,
	ActionHoldIssued:            CategoryCompliance,
	ActionHoldReleased:          CategoryCompliance,
	ActionHoldPartiallyReleased: CategoryCompliance,
	ActionHoldExpired:           CategoryCompliance,
	ActionCustodianAdded:        CategoryCompliance,
	ActionCustodianNotified:     CategoryCompliance,
	ActionCustodianAcknowledged: CategoryCompliance,
	ActionCustodianNonCompliant: CategoryCompliance,
	ActionCustodianEscalated:    CategoryCompliance,
	ActionCustodianReleased:     CategoryCompliance,
	ActionCustodianCorrected:    CategoryCompliance,
	ActionInterviewRecorded:     CategoryCompliance,
	ActionEvidenceAttached:      CategoryCompliance,

	ActionCustodianAckDuplicate:     CategoryOperations,
	ActionReminderRecorded:          CategoryOperations,
	ActionNotificationDispatched:    CategoryOperations,
	ActionNotificationDispatchFault: CategoryOperations,
}

// Category returns the Category for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() Category {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Filter narrows an audit query. Zero values mean "no constraint".
type Filter struct {
	Actor  string
	Action Action
	From   time.Time
	To     time.Time
}

// Matches reports whether an entry satisfies the filter.
func (f Filter) Matches(e Entry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}
