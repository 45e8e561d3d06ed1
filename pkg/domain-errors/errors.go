// Package domainerrors defines typed errors for business-rule violations.
//
// Services translate infrastructure facts (see pkg/platform/sentinel) and
// illegal operations into these errors; handlers render them as JSON
// envelopes via ToHTTPStatus. Codes are part of the API contract: callers
// branch on them, so adding a code is cheap but changing one is a breaking
// change.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain error.
type Code string

const (
	// CodeInvalidTransition marks an operation that is illegal from the
	// entity's current state. Recoverable by the caller, never retried
	// automatically.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeCustodianReleased marks an operation attempted on a released
	// custodian. Terminal, non-retryable caller error.
	CodeCustodianReleased Code = "custodian_released"

	// CodeAlreadyReleased is the hold-level equivalent of CodeCustodianReleased.
	CodeAlreadyReleased Code = "already_released"

	// CodeNotFound marks an unknown hold or custodian email.
	CodeNotFound Code = "not_found"

	// CodeDuplicateCustodian marks a creation-time case-insensitive email
	// collision in a custodian list.
	CodeDuplicateCustodian Code = "duplicate_custodian"

	// CodeDispatchFailed records a failed notification delivery attempt.
	// Informational: it is written to the audit trail and never fails the
	// originating state change.
	CodeDispatchFailed Code = "dispatch_failed"

	// CodeInvalidInput marks a value rejected at a trust boundary.
	CodeInvalidInput Code = "invalid_input"

	// CodeBadRequest marks a malformed or semantically invalid request.
	CodeBadRequest Code = "bad_request"

	// CodeTimeout marks an operation aborted by context deadline.
	CodeTimeout Code = "timeout"

	// CodeInternal marks an unexpected failure with no caller remedy.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability:
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidTransition, CodeCustodianReleased, CodeAlreadyReleased:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateCustodian:
		return http.StatusConflict
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
