// Package dErrors provides coded domain errors so callers can branch on the
// specific business rule that failed instead of matching error strings.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of domain failure.
type Code string

const (
	// CodeInvalidInput covers structurally invalid requests, e.g. a missing
	// diagnosis code or an unsupported coding system at claim intake.
	CodeInvalidInput Code = "invalid_input"

	// CodeNotFound covers lookups of unknown claims, members, or benefits.
	CodeNotFound Code = "not_found"

	// CodePreconditionFailed covers illegal state transitions, e.g. paying a
	// claim that is not approved, or admin-approving a claim that never
	// required higher approval.
	CodePreconditionFailed Code = "precondition_failed"

	// CodeLimitExceeded is returned when a claim amount does not fit within
	// the member's remaining benefit limit.
	CodeLimitExceeded Code = "limit_exceeded"

	// CodeFraudBlock is returned when payment is attempted on a claim whose
	// fraud risk level blocks disbursement.
	CodeFraudBlock Code = "fraud_block"

	// CodeConflict signals an optimistic concurrency failure: the record was
	// modified between read and write.
	CodeConflict Code = "conflict"

	// CodeInvariantViolation signals a broken domain invariant detected while
	// constructing or mutating a model.
	CodeInvariantViolation Code = "invariant_violation"

	CodeBadRequest Code = "bad_request"
	CodeTimeout    Code = "timeout"
	CodeInternal   Code = "internal"
)

// DomainError carries a machine-readable code alongside a human-readable
// message naming the guard that failed.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New creates a DomainError with the given code and message.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf creates a DomainError with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the cause chain.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a convenience alias for HasCode, matching call sites that read
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for
// un-coded errors.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to an HTTP status for the transport
// layer. Keeping the mapping here gives every handler the same envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePreconditionFailed, CodeLimitExceeded, CodeFraudBlock:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
