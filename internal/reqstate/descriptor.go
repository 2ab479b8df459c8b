// Package reqstate holds the per-RPC pieces the Connection Actor drives: an
// immutable Descriptor describing what to send and how replies should be
// delivered, and a State machine tracking one in-flight stream from Open
// through a terminal Closed status.
package reqstate

import (
	"time"

	"github.com/crazyfrankie/escore/mem"
	"github.com/crazyfrankie/escore/metadata"
)

// Disposition selects how a Request State hands decoded messages back to
// its caller.
type Disposition int

const (
	// Aggregate collects every message and replies once, at Closed.
	Aggregate Disposition = iota
	// Iterator hands back a pull-based consumer (see State.Pull).
	Iterator
	// Push invokes a callback inline for every decoded message.
	Push
)

func (d Disposition) String() string {
	switch d {
	case Aggregate:
		return "aggregate"
	case Iterator:
		return "iterator"
	case Push:
		return "push"
	default:
		return "unknown"
	}
}

// BodyProducer yields the pre-encoded messages that make up a request body.
// A unary or server-streaming call's body is a single message; a
// client-streaming or bidirectional call's body is a finite or unbounded
// sequence. The Connection Actor calls Next exactly once per outbound
// message, on its own goroutine, until ok is false.
type BodyProducer interface {
	Next() (payload []byte, ok bool)
}

// singleBody yields exactly one message.
type singleBody struct {
	payload []byte
	sent    bool
}

// Single returns a BodyProducer that yields payload once.
func Single(payload []byte) BodyProducer {
	return &singleBody{payload: payload}
}

func (s *singleBody) Next() ([]byte, bool) {
	if s.sent {
		return nil, false
	}
	s.sent = true
	return s.payload, true
}

// sliceBody yields a fixed, pre-encoded sequence of messages in order.
type sliceBody struct {
	payloads [][]byte
	idx      int
}

// FromSlice returns a BodyProducer yielding each of payloads in order, then
// exhausting. Used by Append for the options frame followed by event frames.
func FromSlice(payloads [][]byte) BodyProducer {
	return &sliceBody{payloads: payloads}
}

func (s *sliceBody) Next() ([]byte, bool) {
	if s.idx >= len(s.payloads) {
		return nil, false
	}
	p := s.payloads[s.idx]
	s.idx++
	return p, true
}

// FuncBody adapts a plain function into a BodyProducer, for client-streaming
// callers that want to compute each frame lazily (including unbounded
// sequences).
type FuncBody func() ([]byte, bool)

func (f FuncBody) Next() ([]byte, bool) { return f() }

// OnPushFunc receives one decoded message per call, synchronously, on the
// Connection Actor's goroutine. Returning an error cancels the request.
type OnPushFunc func(mem.Buffer) error

// Descriptor is the immutable description of one RPC invocation submitted to
// the Connection Actor.
type Descriptor struct {
	// Path is the fully-qualified RPC path, e.g. "/event_store.client.streams.Streams/Read".
	Path string
	// Headers are the request headers; the actor fills in pseudo-headers
	// (":method", ":path", ":scheme", ":authority") and adds them to these.
	Headers metadata.MD
	// Body yields the pre-encoded request messages.
	Body BodyProducer
	// Disposition selects how decoded responses are delivered.
	Disposition Disposition
	// OnPush is invoked per message when Disposition is Push; nil otherwise.
	OnPush OnPushFunc
	// Deadline, if non-zero, bounds how long the request may remain open.
	Deadline time.Time
	// MaxRecvMessageSize bounds a single decoded message; 0 means the
	// connection-wide default.
	MaxRecvMessageSize uint32
}
