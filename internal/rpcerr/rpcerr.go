// Package rpcerr defines the typed error kinds a request can terminate
// with. They live in their own package so both internal/connio and
// internal/reqstate can construct and inspect them without an import cycle;
// the root escore package re-exports them under their public names.
package rpcerr

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// ExpectationViolation reports that an append or delete's stream-state
// expectation did not hold.
type ExpectationViolation struct {
	Expected string
	Current  int64
}

func (e *ExpectationViolation) Error() string {
	return fmt.Sprintf("expectation violation: expected %s, current revision %d", e.Expected, e.Current)
}

// GrpcError wraps a non-ok terminal gRPC status.
type GrpcError struct {
	Code    codes.Code
	Message string
	Headers map[string][]string
	Payload []byte
}

func (e *GrpcError) Error() string {
	return fmt.Sprintf("grpc: code = %s desc = %s", e.Code, e.Message)
}

// TransportError reports a connection-level failure: socket error, GOAWAY,
// or an HTTP/2 protocol violation. It is terminal for the whole connection.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return "escore: transport error: " + e.Cause.Error() }
func (e *TransportError) Unwrap() error { return e.Cause }

// TimeoutError reports that a request's deadline elapsed before a terminal
// status was reached.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string { return "escore: request timed out" }
func (e *TimeoutError) Unwrap() error { return e.Cause }

// CancelledError reports a caller-initiated cancellation, a peer
// RST_STREAM(CANCEL), or a Push-callback failure (e.g. a slow subscriber),
// which this client treats as a local cancellation of that one stream.
type CancelledError struct {
	PeerInitiated bool
	// Cause is the Push callback's error, if this cancellation originated
	// there. Nil for a caller- or peer-initiated cancellation.
	Cause error
}

func (e *CancelledError) Error() string {
	if e.PeerInitiated {
		return "escore: cancelled by peer"
	}
	if e.Cause != nil {
		return "escore: cancelled: " + e.Cause.Error()
	}
	return "escore: cancelled"
}

func (e *CancelledError) Unwrap() error { return e.Cause }
