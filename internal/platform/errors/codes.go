// Package errors provides structured errors for the relay node's gRPC surface.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeRequestMissing Code = "REQUEST_MISSING"

	// Runtime errors
	CodeRuntimeUnavailable Code = "RUNTIME_UNAVAILABLE"
	CodeRuntimeSnapshot    Code = "RUNTIME_SNAPSHOT_FAILED"
	CodeEncodeResponse     Code = "ENCODE_RESPONSE_FAILED"

	// Session info errors
	CodeSessionNotStored Code = "SESSION_NOT_STORED"
	CodeSessionPruned    Code = "SESSION_PRUNED"

	// Admin call errors
	CodeCallInvalid   Code = "CALL_INVALID"
	CodeCallRejected  Code = "CALL_REJECTED"
	CodeCallWithdrawn Code = "CALL_WITHDRAWN"
	CodeRuntimeHalted Code = "RUNTIME_HALTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeRequestMissing, CodeCallInvalid:
		return codes.InvalidArgument

	case CodeCallRejected:
		return codes.FailedPrecondition

	case CodeCallWithdrawn:
		return codes.DeadlineExceeded

	case CodeSessionNotStored, CodeSessionPruned:
		return codes.NotFound

	case CodeRuntimeUnavailable, CodeRuntimeHalted:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
