package domain

import dErrors "holdright/pkg/domain-errors"

// CustodianState is one custodian's position in the acknowledgment lifecycle.
//
//	Pending → Notified → {Acknowledged | NonCompliant} → Escalated → Acknowledged
//
// Escalated is deliberately non-terminal: escalation raises visibility, it
// does not lock out late compliance. The released flag is orthogonal and
// lives on the ledger, not here.
type CustodianState string

const (
	CustodianStatePending      CustodianState = "pending"
	CustodianStateNotified     CustodianState = "notified"
	CustodianStateAcknowledged CustodianState = "acknowledged"
	CustodianStateNonCompliant CustodianState = "non_compliant"
	CustodianStateEscalated    CustodianState = "escalated"

	// CustodianStateResolved is reserved for administratively closed
	// custodians. No engine operation produces it yet; it is accepted when
	// parsing stored rows so the column stays forward compatible.
	CustodianStateResolved CustodianState = "resolved"
)

var validCustodianStates = map[CustodianState]bool{
	CustodianStatePending:      true,
	CustodianStateNotified:     true,
	CustodianStateAcknowledged: true,
	CustodianStateNonCompliant: true,
	CustodianStateEscalated:    true,
	CustodianStateResolved:     true,
}

// ParseCustodianState constructs a CustodianState from external input.
func ParseCustodianState(s string) (CustodianState, error) {
	st := CustodianState(s)
	if !validCustodianStates[st] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid custodian state: "+s)
	}
	return st, nil
}

// IsValid checks membership in the closed state set.
func (s CustodianState) IsValid() bool { return validCustodianStates[s] }

// Terminal reports whether the compliance lifecycle is complete.
// Escalated is intentionally absent.
func (s CustodianState) Terminal() bool {
	return s == CustodianStateAcknowledged || s == CustodianStateResolved
}
