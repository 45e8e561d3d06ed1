package domain

import dErrors "holdright/pkg/domain-errors"

// HoldStatus is the lifecycle state of a hold aggregate.
// Invariant: Released/PartiallyReleased are derived from custodian released
// flags, never written directly by callers; Draft/Active are set by issuance.
type HoldStatus string

const (
	HoldStatusDraft             HoldStatus = "draft"
	HoldStatusActive            HoldStatus = "active"
	HoldStatusPartiallyReleased HoldStatus = "partially_released"
	HoldStatusReleased          HoldStatus = "released"
	// HoldStatusExpired is reachable only through the optional expiry policy
	// hook; the engine never transitions into it on its own.
	HoldStatusExpired HoldStatus = "expired"
)

var validHoldStatuses = map[HoldStatus]bool{
	HoldStatusDraft:             true,
	HoldStatusActive:            true,
	HoldStatusPartiallyReleased: true,
	HoldStatusReleased:          true,
	HoldStatusExpired:           true,
}

// ParseHoldStatus constructs a HoldStatus from external input (storage rows,
// filters). Errors: CodeInvalidInput on empty or unsupported values.
func ParseHoldStatus(s string) (HoldStatus, error) {
	st := HoldStatus(s)
	if !validHoldStatuses[st] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid hold status: "+s)
	}
	return st, nil
}

// IsValid checks membership in the closed status set.
func (s HoldStatus) IsValid() bool { return validHoldStatuses[s] }
