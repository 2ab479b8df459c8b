// Package escore is a client for the EventStore 20+ streaming protocol over
// HTTP/2 with gRPC framing. It owns a single long-lived connection carrying
// many concurrent logical requests — unary, server-streaming,
// client-streaming and bidirectional — each with its own lifecycle,
// buffering, cancellation and delivery discipline. The concrete EventStore
// RPC message schemas are an external collaborator; this package works
// against a small internal stand-in wire format (see wire.go) so its
// connection multiplexing, framing and state-machine logic can be built and
// exercised without depending on generated protobuf types it does not own.
package escore

import (
	"context"

	"go.uber.org/zap"

	"github.com/crazyfrankie/escore/internal/connio"
	"github.com/crazyfrankie/escore/mem"
	"github.com/crazyfrankie/escore/stats"
)

// Conn is one HTTP/2 connection to an EventStore node. All methods are safe
// for concurrent use by multiple goroutines.
type Conn struct {
	actor  *connio.Actor
	logger *zap.Logger
	creds  PerRPCCredentials
	pool   mem.BufferPool
	decode EventDecoder
}

// Dial connects to target (host:port) and starts the connection's actor.
// It blocks until the TCP/TLS handshake completes and the HTTP/2 client
// preface and initial SETTINGS frame have been written; it does not wait
// for the server's SETTINGS.
func Dial(ctx context.Context, target string, opts ...DialOption) (*Conn, error) {
	do := defaultDialOptions()
	for _, opt := range opts {
		opt(do)
	}
	if do.pool == nil {
		do.pool = mem.DefaultBufferPool()
	}

	actor, err := connio.Dial(ctx, target, connio.Options{
		TLSConfig:             do.tlsConfig,
		ConnectTimeout:        do.connectTimeout,
		KeepaliveInterval:     do.keepaliveInterval,
		KeepaliveTimeout:      do.keepaliveTimeout,
		MaxReceiveMessageSize: do.maxRecvMsgSize,
		MaxFrameSize:          do.maxFrameSize,
		Authority:             target,
		Logger:                do.logger,
		Pool:                  do.pool,
		StatsHandler:          do.statsHandler,
	})
	if err != nil {
		return nil, err
	}

	return &Conn{
		actor:  actor,
		logger: do.logger,
		creds:  do.perRPCCreds,
		pool:   do.pool,
		decode: defaultEventDecoder,
	}, nil
}

// Close tears the connection down, driving every in-flight request
// (including subscriptions) to a terminal error. There is no automatic
// reconnection.
func (c *Conn) Close() error {
	return c.actor.Close()
}

// ActiveStreams reports how many requests are currently in flight.
func (c *Conn) ActiveStreams() int {
	return c.actor.ActiveStreams()
}

// Stats returns a snapshot of connection health: stream count, cumulative
// payload bytes, and keepalive round-trip latency percentiles.
func (c *Conn) Stats() stats.Snapshot {
	return c.actor.Stats()
}

// WithEventDecoder overrides how response payloads become domain Events for
// this Conn's calls. Intended for a deployment that owns the real
// EventStore generated types and wants to swap in the true
// "from_read_response" conversion in place of this client's JSON stand-in.
func (c *Conn) WithEventDecoder(decode EventDecoder) *Conn {
	clone := *c
	clone.decode = decode
	return &clone
}

func (c *Conn) authHeader(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", nil
	}
	return c.creds(ctx)
}
