package frame

import (
	"net/http"
	"net/url"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HTTPStatusToCode maps an HTTP/2 :status seen before any grpc-status
// trailer arrived (e.g. a proxy or load balancer rejecting the request
// outright) to the gRPC code grpc-go itself uses for the same mapping.
func HTTPStatusToCode(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest:
		return codes.Internal
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.Unimplemented
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// TrailerStatus extracts the terminal RPC status from response trailers. ok
// is false when trailer carries no grpc-status key, meaning the stream has
// not yet reached its terminal trailer (e.g. these are leading headers, or
// a mid-stream flush that happened not to carry them).
func TrailerStatus(trailer http.Header) (*status.Status, bool) {
	raw := trailer.Get("grpc-status")
	if raw == "" {
		return nil, false
	}

	code, err := strconv.Atoi(raw)
	if err != nil {
		return status.Newf(codes.Unknown, "grpc: invalid grpc-status trailer %q: %v", raw, err), true
	}

	msg := trailer.Get("grpc-message")
	if unescaped, err := url.QueryUnescape(msg); err == nil {
		msg = unescaped
	}

	return status.New(codes.Code(code), msg), true
}
