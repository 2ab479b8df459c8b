package reqstate

import (
	"context"
	"net/http"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/crazyfrankie/escore/internal/frame"
	"github.com/crazyfrankie/escore/internal/rpcerr"
	"github.com/crazyfrankie/escore/mem"
)

// Status is the lifecycle stage of one in-flight request.
type Status int

const (
	Open Status = iota
	HalfClosedLocal
	HalfClosedRemote
	Closed
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case HalfClosedLocal:
		return "half_closed_local"
	case HalfClosedRemote:
		return "half_closed_remote"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of an Aggregate-disposition request.
type Result struct {
	Messages []mem.Buffer
	Status   *status.Status
	Err      error
}

// State is one in-flight request's state machine: the assigned HTTP/2
// stream id, its frame decoder, queued-but-undelivered messages, and the
// completion handle matching its Descriptor's disposition. The Connection
// Actor is the only writer; State additionally allows an Iterator-disposition
// consumer to Pull concurrently from its own goroutine, guarded by mu.
type State struct {
	mu sync.Mutex

	streamID uint32
	desc     *Descriptor
	decoder  *frame.Decoder

	status       Status
	terminalErr  error
	grpcStatus   *status.Status
	pending      []mem.Buffer
	notify       chan struct{}

	aggReply chan Result

	ackOnce sync.Once
	ackCh   chan struct{}

	doneCh chan struct{}
}

// New allocates a State for stream id assigned to desc. pool and
// maxRecvSize configure the per-request frame decoder.
func New(streamID uint32, desc *Descriptor, pool mem.BufferPool, maxRecvSize uint32) *State {
	if desc.MaxRecvMessageSize != 0 {
		maxRecvSize = desc.MaxRecvMessageSize
	}
	s := &State{
		streamID: streamID,
		desc:     desc,
		decoder:  frame.NewDecoder(pool, maxRecvSize),
		notify:   make(chan struct{}, 1),
		ackCh:    make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if desc.Disposition == Aggregate {
		s.aggReply = make(chan Result, 1)
	}
	return s
}

// StreamID returns the HTTP/2 stream id this state was allocated for.
func (s *State) StreamID() uint32 { return s.streamID }

// Descriptor returns the immutable Descriptor this state was created from.
func (s *State) Descriptor() *Descriptor { return s.desc }

// Status returns the current lifecycle stage.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HandleData feeds newly arrived DATA-frame bytes to the decoder and routes
// each completed message per the request's disposition. Called only from
// the Connection Actor's goroutine. A non-nil return means the request must
// be closed with that error (a malformed frame is fatal to this stream
// only, never to the connection).
func (s *State) HandleData(chunk []byte) error {
	s.mu.Lock()
	decoder := s.decoder
	s.mu.Unlock()

	msgs, err := decoder.Decode(chunk, nil)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		switch s.desc.Disposition {
		case Aggregate, Iterator:
			s.mu.Lock()
			s.pending = append(s.pending, msg)
			s.mu.Unlock()
			s.signalReady()
		case Push:
			if cbErr := s.desc.OnPush(msg); cbErr != nil {
				return &rpcerr.CancelledError{Cause: cbErr}
			}
		}
	}
	return nil
}

// HandleTrailers records the terminal gRPC status carried by trailer and
// transitions Open/HalfClosedLocal to HalfClosedRemote. It does not by
// itself close the state; the actor calls Close once both halves are done.
func (s *State) HandleTrailers(trailer http.Header) {
	st, ok := frame.TrailerStatus(trailer)
	if !ok {
		st = status.New(codes.Unknown, "grpc: missing grpc-status trailer")
	}

	s.mu.Lock()
	s.grpcStatus = st
	if s.status == Open || s.status == HalfClosedLocal {
		s.status = HalfClosedRemote
	}
	s.mu.Unlock()
}

// HandleHTTPStatus records a terminal status derived from a non-200 HTTP
// response when no grpc-status trailer will ever arrive (e.g. a proxy
// rejected the request before it reached the gRPC server).
func (s *State) HandleHTTPStatus(httpStatus int) {
	s.mu.Lock()
	s.grpcStatus = status.New(frame.HTTPStatusToCode(httpStatus), http.StatusText(httpStatus))
	s.status = HalfClosedRemote
	s.mu.Unlock()
}

// MarkHalfClosedLocal records that the request body producer is exhausted
// and the terminating frame has been written.
func (s *State) MarkHalfClosedLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Open {
		s.status = HalfClosedLocal
	}
}

// ReadyToClose reports whether both halves have closed, so the actor can
// finalize the terminal status.
func (s *State) ReadyToClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == HalfClosedRemote && s.grpcStatus != nil
}

// Close transitions the state to Closed with the given terminal error (nil
// on success) and delivers the completion per disposition. Called exactly
// once per state, from the actor's goroutine (or, for connection teardown,
// while the actor is draining its routing table).
func (s *State) Close(err error) {
	s.mu.Lock()
	if s.status == Closed {
		s.mu.Unlock()
		return
	}
	s.status = Closed
	s.terminalErr = err
	grpcStatus := s.grpcStatus
	pending := s.pending
	s.pending = nil
	close(s.doneCh)
	s.mu.Unlock()

	switch s.desc.Disposition {
	case Aggregate:
		s.aggReply <- Result{Messages: pending, Status: grpcStatus, Err: err}
	case Iterator:
		s.signalReady()
	case Push:
		// No synthetic end message; subscribers infer termination from
		// their handle becoming unusable.
		for _, b := range pending {
			b.Free()
		}
	}
}

// Wait blocks for the Aggregate result. It panics if this state's
// disposition is not Aggregate.
func (s *State) Wait(ctx context.Context) (Result, error) {
	if s.aggReply == nil {
		panic("reqstate: Wait called on a state whose disposition is " + s.desc.Disposition.String())
	}
	select {
	case r := <-s.aggReply:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Pull returns the next decoded message for an Iterator-disposition state,
// blocking until one is available, the state reaches Closed, or ctx is
// done. ok is false once the state is closed and no buffered message
// remains; the caller should then inspect the returned error (nil on a
// clean end-of-stream).
func (s *State) Pull(ctx context.Context) (msg mem.Buffer, ok bool, err error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			msg = s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return msg, true, nil
		}
		if s.status == Closed {
			terminalErr := s.terminalErr
			s.mu.Unlock()
			return nil, false, terminalErr
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Done is closed once the state reaches Closed.
func (s *State) Done() <-chan struct{} { return s.doneCh }

// Err returns the terminal error recorded at Close, if any. It is only
// meaningful once Done is closed.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalErr
}

// GrpcStatus returns the terminal gRPC status recorded from trailers, if
// any has arrived yet.
func (s *State) GrpcStatus() *status.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grpcStatus
}

// Ack marks the stream as acknowledged by the peer (first headers or data
// frame received). Idempotent.
func (s *State) Ack() {
	s.ackOnce.Do(func() { close(s.ackCh) })
}

// Acked is closed once the peer has acknowledged the stream.
func (s *State) Acked() <-chan struct{} { return s.ackCh }

func (s *State) signalReady() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
