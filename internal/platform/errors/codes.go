// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error kind.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeTransient marks a retryable storage or network failure.
	CodeTransient Code = "TRANSIENT"
	// CodeNotAuthenticated marks a user-scoped operation without a session.
	CodeNotAuthenticated Code = "NOT_AUTHENTICATED"
	// CodeNotFound marks a missing record.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict marks a unique-constraint violation.
	CodeConflict Code = "CONFLICT"
	// CodeSlotOccupied marks a planner write onto an occupied slot.
	CodeSlotOccupied Code = "SLOT_OCCUPIED"
	// CodeAgeOutOfRange marks a child outside a camp's age range.
	CodeAgeOutOfRange Code = "AGE_OUT_OF_RANGE"
	// CodeValidation marks bad input shape or values.
	CodeValidation Code = "VALIDATION"
	// CodePermission marks an operation on a record the caller does not own.
	CodePermission Code = "PERMISSION"
	// CodeFatal marks an invariant violation.
	CodeFatal Code = "FATAL"
)

// Codes lists every known code in a stable order.
func Codes() []Code {
	return []Code{
		CodeUnknown,
		CodeTransient,
		CodeNotAuthenticated,
		CodeNotFound,
		CodeConflict,
		CodeSlotOccupied,
		CodeAgeOutOfRange,
		CodeValidation,
		CodePermission,
		CodeFatal,
	}
}

// Warning reports whether the code is surfaced to users as an overridable
// warning rather than a failure.
func (c Code) Warning() bool {
	return c == CodeSlotOccupied || c == CodeAgeOutOfRange
}

// Retryable reports whether operations failing with this code may be retried.
func (c Code) Retryable() bool {
	return c == CodeTransient
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation:
		return codes.InvalidArgument
	case CodeSlotOccupied, CodeAgeOutOfRange:
		return codes.FailedPrecondition
	case CodeNotFound:
		return codes.NotFound
	case CodeConflict:
		return codes.AlreadyExists
	case CodeNotAuthenticated:
		return codes.Unauthenticated
	case CodePermission:
		return codes.PermissionDenied
	case CodeTransient:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
