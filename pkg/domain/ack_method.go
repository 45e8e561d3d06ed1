package domain

import dErrors "holdright/pkg/domain-errors"

// AckMethod records how a custodian's acknowledgment reached the engine.
type AckMethod string

const (
	AckMethodEmail    AckMethod = "email"
	AckMethodInPerson AckMethod = "in_person"
	AckMethodPhone    AckMethod = "phone"
	AckMethodSystem   AckMethod = "system"
)

var validAckMethods = map[AckMethod]bool{
	AckMethodEmail:    true,
	AckMethodInPerson: true,
	AckMethodPhone:    true,
	AckMethodSystem:   true,
}

// ParseAckMethod constructs an AckMethod from external input.
func ParseAckMethod(s string) (AckMethod, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "acknowledgment method cannot be empty")
	}
	m := AckMethod(s)
	if !validAckMethods[m] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid acknowledgment method: "+s)
	}
	return m, nil
}

// IsValid checks membership in the closed method set.
func (m AckMethod) IsValid() bool { return validAckMethods[m] }
