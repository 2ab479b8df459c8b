package escore

import (
	"context"
	"crypto/tls"
	"time"

	"go.uber.org/zap"

	"github.com/crazyfrankie/escore/mem"
	"github.com/crazyfrankie/escore/stats"
)

// PerRPCCredentials supplies the "authorization" header value for one
// request. Returning "" omits the header.
type PerRPCCredentials func(ctx context.Context) (string, error)

type dialOptions struct {
	tlsConfig         *tls.Config
	connectTimeout    time.Duration
	keepaliveInterval time.Duration
	keepaliveTimeout  time.Duration
	maxRecvMsgSize    uint32
	maxFrameSize      uint32
	logger            *zap.Logger
	statsHandler      stats.Handler
	perRPCCreds       PerRPCCredentials
	pool              mem.BufferPool
}

func defaultDialOptions() *dialOptions {
	return &dialOptions{
		connectTimeout:    10 * time.Second,
		keepaliveInterval: 30 * time.Second,
		keepaliveTimeout:  10 * time.Second,
		maxRecvMsgSize:    16 * 1024 * 1024,
		logger:            zap.NewNop(),
	}
}

// DialOption configures Dial, mirroring the teacher's ClientOption
// functional-options pattern.
type DialOption func(*dialOptions)

// WithTLSConfig supplies the tls.Config used to dial target. TLS content
// (certificates, verification policy) is the caller's concern; this option
// only carries the plumbing point.
func WithTLSConfig(cfg *tls.Config) DialOption {
	return func(o *dialOptions) { o.tlsConfig = cfg }
}

// WithConnectTimeout bounds how long the initial TCP/TLS dial may take.
func WithConnectTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.connectTimeout = d }
}

// WithKeepalive configures the HTTP/2 PING interval and the timeout waiting
// for its PONG before the connection is torn down as unavailable.
func WithKeepalive(interval, timeout time.Duration) DialOption {
	return func(o *dialOptions) {
		o.keepaliveInterval = interval
		o.keepaliveTimeout = timeout
	}
}

// WithMaxReceiveMessageSize bounds a single length-prefixed gRPC message; a
// larger one fails just that request with a ResourceExhausted decode error.
// Default 16 MiB; 0 means no limit.
func WithMaxReceiveMessageSize(n uint32) DialOption {
	return func(o *dialOptions) { o.maxRecvMsgSize = n }
}

// WithMaxFrameSize sets the largest HTTP/2 frame the connection will read;
// a larger frame is a connection-level error that tears the whole
// connection down. Default 16 MiB.
func WithMaxFrameSize(n uint32) DialOption {
	return func(o *dialOptions) { o.maxFrameSize = n }
}

// WithLogger installs the *zap.Logger the connection actor logs through.
// Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) DialOption {
	return func(o *dialOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStatsHandler installs a stats.Handler for connection/RPC
// instrumentation.
func WithStatsHandler(h stats.Handler) DialOption {
	return func(o *dialOptions) { o.statsHandler = h }
}

// WithPerRPCCredentials installs the function that produces the
// "authorization" header value for every request.
func WithPerRPCCredentials(f PerRPCCredentials) DialOption {
	return func(o *dialOptions) { o.perRPCCreds = f }
}

// WithBufferPool overrides the mem.BufferPool used to allocate decoded
// message payloads. Defaults to mem.DefaultBufferPool().
func WithBufferPool(pool mem.BufferPool) DialOption {
	return func(o *dialOptions) { o.pool = pool }
}
