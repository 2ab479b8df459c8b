// Package connio implements the Connection Actor: a single goroutine that
// owns one HTTP/2 socket, a routing table from stream id to Request State,
// and drives frame dispatch, outbound writes, user commands and timers
// strictly serially, mirroring the teacher's single-goroutine-per-connection
// ownership model.
package connio

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/internal/rpcerr"
	"github.com/crazyfrankie/escore/mem"
	"github.com/crazyfrankie/escore/stats"
)

// defaultWindowSize is the HTTP/2 spec default flow-control window size
// (golang.org/x/net/http2 does not export this as a constant).
const defaultWindowSize = 65535

// Handle identifies one in-flight or completed request for Cancel. Done
// reports when the underlying Request State reaches Closed, so a caller
// holding a Handle can react to a subscription ending without polling.
type Handle struct {
	streamID uint32
	done     <-chan struct{}
}

// Done returns a channel that closes once the request this Handle refers
// to reaches a terminal state. A zero-value Handle's Done is nil, which
// blocks forever in a select — callers that only ever obtain a Handle from
// SubmitPush do not need to guard against that case.
func (h Handle) Done() <-chan struct{} { return h.done }

// Options configures an Actor at Dial time.
type Options struct {
	TLSConfig           *tls.Config
	ConnectTimeout      time.Duration
	KeepaliveInterval   time.Duration
	KeepaliveTimeout    time.Duration
	MaxReceiveMessageSize uint32
	MaxFrameSize        uint32
	Authority           string
	Logger              *zap.Logger
	Pool                mem.BufferPool
	StatsHandler        stats.Handler
}

const defaultMaxFrameSize = 16 * 1024 * 1024 // 16 MiB, per the framing codec's default ceiling

// Actor owns one HTTP/2 connection. All exported methods are safe to call
// concurrently from many goroutines; internally they only ever exchange
// values with the actor's single run loop over channels.
type Actor struct {
	opts   Options
	logger *zap.Logger
	conn   net.Conn
	framer *http2.Framer

	hpackBuf *bytes.Buffer
	hpackEnc *hpack.Encoder

	nextStreamID uint32
	streams      map[uint32]*reqstate.State

	streamRecvWindow int32
	connRecvWindow   int32
	streamSendWindow map[uint32]int32
	connSendWindow   int32
	pendingWrites    map[uint32][]pendingFrame

	reqCh    chan *requestOp
	cancelCh chan *cancelOp

	closeOnce sync.Once
	closeCh   chan struct{}
	closeErr  error

	latency *stats.LatencyRecorder

	activeStreams atomic.Int64

	statsHandler stats.Handler
	connCtx      context.Context
	connEndOnce  sync.Once
	rpcStats     map[uint32]rpcCallStats
}

// rpcCallStats is the per-stream bookkeeping needed to report a matching
// stats.End once the stream closes.
type rpcCallStats struct {
	ctx   context.Context
	begin time.Time
}

type pendingFrame struct {
	data     []byte
	endLocal bool
}

type requestOp struct {
	desc  *reqstate.Descriptor
	reply chan requestAck
}

type requestAck struct {
	state *reqstate.State
	err   error
}

type cancelOp struct {
	handle Handle
	reply  chan error
}

// Dial establishes a TCP (optionally TLS) connection to target, writes the
// HTTP/2 client preface and initial SETTINGS frame, and starts the Actor's
// run loop; it does not wait for the server's SETTINGS, which the run loop
// acknowledges when they arrive. The returned Actor owns conn until Close.
func Dial(ctx context.Context, target string, opts Options) (*Actor, error) {
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = defaultMaxFrameSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Pool == nil {
		opts.Pool = mem.DefaultBufferPool()
	}
	if opts.Authority == "" {
		opts.Authority = target
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	var conn net.Conn
	var err error
	if opts.TLSConfig != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", target, opts.TLSConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", target)
	}
	if err != nil {
		return nil, &rpcerr.TransportError{Cause: err}
	}

	a := newActor(conn, opts)
	if err := a.handshake(); err != nil {
		conn.Close()
		return nil, &rpcerr.TransportError{Cause: err}
	}

	a.connCtx = ctx
	if a.statsHandler != nil {
		a.connCtx = a.statsHandler.TagConn(ctx, &stats.ConnTagInfo{
			RemoteAddr: conn.RemoteAddr(),
			LocalAddr:  conn.LocalAddr(),
		})
		a.statsHandler.HandleConn(a.connCtx, &stats.ConnBegin{Client: true})
	}

	go a.run()
	return a, nil
}

func newActor(conn net.Conn, opts Options) *Actor {
	framer := http2.NewFramer(conn, conn)
	framer.SetMaxReadFrameSize(opts.MaxFrameSize)
	framer.ReadMetaHeaders = hpack.NewDecoder(4096, nil)

	buf := new(bytes.Buffer)
	return &Actor{
		opts:             opts,
		logger:           opts.Logger,
		conn:             conn,
		framer:           framer,
		hpackBuf:         buf,
		hpackEnc:         hpack.NewEncoder(buf),
		nextStreamID:     1,
		streams:          make(map[uint32]*reqstate.State),
		streamRecvWindow: defaultWindowSize,
		connRecvWindow:   defaultWindowSize,
		streamSendWindow: make(map[uint32]int32),
		connSendWindow:   defaultWindowSize,
		pendingWrites:    make(map[uint32][]pendingFrame),
		reqCh:            make(chan *requestOp),
		cancelCh:         make(chan *cancelOp),
		closeCh:          make(chan struct{}),
		latency:          stats.NewLatencyRecorder(),
		statsHandler:     opts.StatsHandler,
		rpcStats:         make(map[uint32]rpcCallStats),
	}
}

func (a *Actor) handshake() error {
	if _, err := a.conn.Write([]byte(http2.ClientPreface)); err != nil {
		return fmt.Errorf("connio: writing client preface: %w", err)
	}
	if err := a.framer.WriteSettings(); err != nil {
		return fmt.Errorf("connio: writing initial settings: %w", err)
	}
	return nil
}

// Submit sends desc as an Aggregate-disposition request and blocks until
// its terminal result is available, ctx is done, desc.Deadline passes, or
// the connection tears down. A request that ends without a non-OK gRPC
// status (reset, cancelled, aborted on a malformed frame, or torn down)
// returns its terminal error.
func (a *Actor) Submit(ctx context.Context, desc *reqstate.Descriptor) (reqstate.Result, error) {
	desc.Disposition = reqstate.Aggregate
	if !desc.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, desc.Deadline)
		defer cancel()
	}
	ack, err := a.dispatchRequest(ctx, desc)
	if err != nil {
		return reqstate.Result{}, err
	}

	resultCh := make(chan reqstate.Result, 1)
	go func() {
		res, _ := ack.state.Wait(context.Background())
		resultCh <- res
	}()

	select {
	case res := <-resultCh:
		if res.Err != nil && (res.Status == nil || res.Status.Code() == 0) {
			for _, m := range res.Messages {
				m.Free()
			}
			return reqstate.Result{Status: res.Status, Err: res.Err}, res.Err
		}
		return res, nil
	case <-ctx.Done():
		_ = a.Cancel(context.Background(), Handle{streamID: ack.state.StreamID()})
		return reqstate.Result{}, &rpcerr.TimeoutError{Cause: ctx.Err()}
	case <-a.closeCh:
		return reqstate.Result{}, a.connErr()
	}
}

// SubmitPush sends desc as a Push-disposition request (a subscription) and
// returns its Handle as soon as the server acknowledges the stream, or an
// error if the stream is rejected before that happens.
func (a *Actor) SubmitPush(ctx context.Context, desc *reqstate.Descriptor) (Handle, error) {
	desc.Disposition = reqstate.Push
	ack, err := a.dispatchRequest(ctx, desc)
	if err != nil {
		return Handle{}, err
	}

	select {
	case <-ack.state.Acked():
		return Handle{streamID: ack.state.StreamID(), done: ack.state.Done()}, nil
	case <-ack.state.Done():
		return Handle{}, ack.state.Err()
	case <-ctx.Done():
		_ = a.Cancel(context.Background(), Handle{streamID: ack.state.StreamID()})
		return Handle{}, &rpcerr.TimeoutError{Cause: ctx.Err()}
	case <-a.closeCh:
		return Handle{}, a.connErr()
	}
}

func (a *Actor) dispatchRequest(ctx context.Context, desc *reqstate.Descriptor) (requestAck, error) {
	op := &requestOp{desc: desc, reply: make(chan requestAck, 1)}
	select {
	case a.reqCh <- op:
	case <-ctx.Done():
		return requestAck{}, ctx.Err()
	case <-a.closeCh:
		return requestAck{}, a.connErr()
	}

	select {
	case ack := <-op.reply:
		if ack.err != nil {
			return requestAck{}, ack.err
		}
		return ack, nil
	case <-ctx.Done():
		return requestAck{}, ctx.Err()
	case <-a.closeCh:
		return requestAck{}, a.connErr()
	}
}

// Cancel is idempotent: an unknown handle, or a connection that has already
// torn down, both report success.
func (a *Actor) Cancel(ctx context.Context, h Handle) error {
	op := &cancelOp{handle: h, reply: make(chan error, 1)}
	select {
	case a.cancelCh <- op:
	case <-a.closeCh:
		return nil
	}

	select {
	case err := <-op.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.closeCh:
		return nil
	}
}

// LocalAddr and RemoteAddr report the underlying socket's endpoints.
func (a *Actor) LocalAddr() net.Addr  { return a.conn.LocalAddr() }
func (a *Actor) RemoteAddr() net.Addr { return a.conn.RemoteAddr() }

// ActiveStreams reports the current size of the routing table.
func (a *Actor) ActiveStreams() int {
	return int(a.activeStreams.Load())
}

// Stats returns a snapshot of connection health: open stream count,
// cumulative byte counters and keepalive round-trip percentiles.
func (a *Actor) Stats() stats.Snapshot {
	return a.latency.Snapshot()
}

// Close tears the connection down as if the peer had sent GOAWAY, driving
// every in-flight Request State to Closed(Unavailable).
func (a *Actor) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = errors.New("connio: connection closed by caller")
		close(a.closeCh)
		a.conn.Close()
	})
	return nil
}

func (a *Actor) connErr() error {
	if a.closeErr != nil {
		return &rpcerr.TransportError{Cause: a.closeErr}
	}
	return &rpcerr.TransportError{Cause: errors.New("connio: connection closed")}
}

// adjustStreamCount updates the routing-table size and keeps the latency
// recorder's gauge in step with it.
func (a *Actor) adjustStreamCount(delta int64) {
	n := a.activeStreams.Add(delta)
	a.latency.SetStreamCount(int(n))
}

// reportRPCEnd emits stats.End for streamID's call, if a stats handler is
// configured and the call was tagged at Begin. Idempotent per stream since
// it deletes the bookkeeping entry it consumes.
func (a *Actor) reportRPCEnd(streamID uint32, err error) {
	if a.statsHandler == nil {
		return
	}
	rs, ok := a.rpcStats[streamID]
	if !ok {
		return
	}
	delete(a.rpcStats, streamID)
	a.statsHandler.HandleRPC(rs.ctx, &stats.End{
		Client:    true,
		BeginTime: rs.begin,
		EndTime:   time.Now(),
		Error:     err,
	})
}

// reportConnEnd emits stats.ConnEnd exactly once, at connection teardown.
func (a *Actor) reportConnEnd() {
	if a.statsHandler == nil {
		return
	}
	a.connEndOnce.Do(func() {
		a.statsHandler.HandleConn(a.connCtx, &stats.ConnEnd{Client: true})
	})
}
