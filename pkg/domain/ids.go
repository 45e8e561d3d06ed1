package domain

import (
	"github.com/google/uuid"

	dErrors "holdright/pkg/domain-errors"
)

// HoldID identifies a legal hold aggregate.
// Invariant: IDs must be valid, non-nil UUIDs.
//
// Usage: construct via ParseHoldID at trust boundaries; direct casting
// bypasses validation.
type HoldID uuid.UUID

// NewHoldID generates a fresh hold identifier.
func NewHoldID() HoldID {
	return HoldID(uuid.New())
}

// ParseHoldID constructs a HoldID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or
// the nil UUID; no other errors are expected.
func ParseHoldID(s string) (HoldID, error) {
	if s == "" {
		return HoldID{}, dErrors.New(dErrors.CodeInvalidInput, "hold id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return HoldID{}, dErrors.New(dErrors.CodeInvalidInput, "hold id must be a valid UUID")
	}
	if u == uuid.Nil {
		return HoldID{}, dErrors.New(dErrors.CodeInvalidInput, "hold id cannot be the nil UUID")
	}
	return HoldID(u), nil
}

func (id HoldID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero value.
func (id HoldID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// CaseRef is the opaque case/matter identifier a hold is associated with.
// The engine never interprets it; it is routing and reporting metadata.
type CaseRef string

// EvidenceRef is a weak reference to an externally collected evidence item.
// The hold records which evidence was gathered under it for traceability but
// does not own the evidence lifecycle.
type EvidenceRef string
