package escore

import "github.com/crazyfrankie/escore/internal/rpcerr"

// Error kinds a public operation can return, re-exported from internal/rpcerr
// so callers can errors.As against the public escore type without reaching
// into an internal package.
type (
	// ExpectationViolation reports that Append or Delete's stream-state
	// expectation did not hold.
	ExpectationViolation = rpcerr.ExpectationViolation
	// GrpcError wraps a non-ok terminal gRPC status from the server.
	GrpcError = rpcerr.GrpcError
	// TransportError reports a connection-level failure; terminal for the
	// whole Conn.
	TransportError = rpcerr.TransportError
	// TimeoutError reports that a request's deadline elapsed before a
	// terminal status was reached.
	TimeoutError = rpcerr.TimeoutError
	// CancelledError reports a caller- or peer-initiated cancellation.
	CancelledError = rpcerr.CancelledError
)
