package connio

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/internal/rpcerr"
	"github.com/crazyfrankie/escore/stats"
)

// run is the actor's single event loop: it processes inbound frames,
// outbound commands, and timers strictly serially on one goroutine.
func (a *Actor) run() {
	frameCh := make(chan http2.Frame, 16)
	readErrCh := make(chan error, 1)
	go a.readLoop(frameCh, readErrCh)

	var pingTicker *time.Ticker
	var pingTickerC <-chan time.Time
	if a.opts.KeepaliveInterval > 0 {
		pingTicker = time.NewTicker(a.opts.KeepaliveInterval)
		pingTickerC = pingTicker.C
		defer pingTicker.Stop()
	}

	var pongTimer *time.Timer
	var pongTimerC <-chan time.Time
	armPong := func() {
		if a.opts.KeepaliveTimeout <= 0 {
			return
		}
		if pongTimer == nil {
			pongTimer = time.NewTimer(a.opts.KeepaliveTimeout)
		} else {
			pongTimer.Reset(a.opts.KeepaliveTimeout)
		}
		pongTimerC = pongTimer.C
	}
	disarmPong := func() {
		if pongTimer != nil {
			pongTimer.Stop()
		}
		pongTimerC = nil
	}
	var pingSent time.Time

	for {
		select {
		case fr, ok := <-frameCh:
			if !ok {
				continue
			}
			if pf, isPing := fr.(*http2.PingFrame); isPing && pf.IsAck() {
				disarmPong()
				if !pingSent.IsZero() {
					a.latency.Observe(time.Since(pingSent))
					pingSent = time.Time{}
				}
			}
			a.dispatchFrame(fr)

		case err := <-readErrCh:
			a.teardown(&rpcerr.TransportError{Cause: err})
			return

		case op := <-a.reqCh:
			a.handleRequest(op)

		case op := <-a.cancelCh:
			a.handleCancel(op)

		case <-pingTickerC:
			pingSent = time.Now()
			a.sendKeepalivePing()
			armPong()

		case <-pongTimerC:
			a.teardown(&rpcerr.TransportError{Cause: fmt.Errorf("connio: keepalive timeout after %s", a.opts.KeepaliveTimeout)})
			return

		case <-a.closeCh:
			a.drainStreams(a.connErr())
			a.reportConnEnd()
			return
		}
	}
}

func (a *Actor) readLoop(out chan<- http2.Frame, errCh chan<- error) {
	for {
		fr, err := a.framer.ReadFrame()
		if err != nil {
			errCh <- err
			return
		}
		out <- fr
	}
}

func (a *Actor) dispatchFrame(fr http2.Frame) {
	switch f := fr.(type) {
	case *http2.MetaHeadersFrame:
		a.handleHeaders(f)
	case *http2.DataFrame:
		a.handleData(f)
	case *http2.RSTStreamFrame:
		a.handleRSTStream(f)
	case *http2.GoAwayFrame:
		a.teardown(&rpcerr.TransportError{Cause: fmt.Errorf("connio: received GOAWAY, code=%s", f.ErrCode)})
	case *http2.SettingsFrame:
		if !f.IsAck() {
			_ = a.framer.WriteSettingsAck()
		}
	case *http2.WindowUpdateFrame:
		a.handleWindowUpdate(f)
	case *http2.PingFrame:
		if !f.IsAck() {
			_ = a.framer.WritePing(true, f.Data)
		}
	default:
		a.logger.Debug("connio: ignoring unhandled frame", zap.String("type", fmt.Sprintf("%T", fr)))
	}
}

func (a *Actor) handleHeaders(f *http2.MetaHeadersFrame) {
	state, ok := a.streams[f.StreamID]
	if !ok {
		return
	}

	httpStatus := 200
	header := http.Header{}
	for _, hf := range f.Fields {
		if hf.Name == ":status" {
			fmt.Sscanf(hf.Value, "%d", &httpStatus)
			continue
		}
		header.Add(hf.Name, hf.Value)
	}

	state.Ack()

	if f.StreamEnded() {
		// Trailers-only response, or a trailer block following data with
		// no intervening header-only frame.
		if httpStatus != 200 {
			state.HandleHTTPStatus(httpStatus)
		} else {
			state.HandleTrailers(header)
		}
		a.finishStream(f.StreamID, state)
		return
	}

	if header.Get("grpc-status") != "" {
		state.HandleTrailers(header)
		a.finishStream(f.StreamID, state)
	}
}

func (a *Actor) handleData(f *http2.DataFrame) {
	state, ok := a.streams[f.StreamID]
	if !ok {
		return
	}

	state.Ack()
	data := f.Data()
	if len(data) > 0 {
		a.latency.AddBytesRecv(int64(len(data)))
		if a.statsHandler != nil {
			if rs, ok := a.rpcStats[f.StreamID]; ok {
				a.statsHandler.HandleRPC(rs.ctx, &stats.InPayload{
					Client:     true,
					Data:       data,
					Length:     len(data),
					WireLength: len(data),
					RecvTime:   time.Now(),
				})
			}
		}
		if err := state.HandleData(data); err != nil {
			a.abortStream(f.StreamID, state, err)
			return
		}
		a.replenishCredit(f.StreamID, len(data))
	}

	if f.StreamEnded() {
		state.HandleTrailers(http.Header{})
		a.finishStream(f.StreamID, state)
	}
}

func (a *Actor) handleRSTStream(f *http2.RSTStreamFrame) {
	state, ok := a.streams[f.StreamID]
	if !ok {
		return
	}
	delete(a.streams, f.StreamID)
	a.adjustStreamCount(-1)
	err := &rpcerr.CancelledError{PeerInitiated: true}
	state.Close(err)
	a.reportRPCEnd(f.StreamID, err)
}

func (a *Actor) handleWindowUpdate(f *http2.WindowUpdateFrame) {
	if f.StreamID == 0 {
		a.connSendWindow += int32(f.Increment)
	} else {
		a.streamSendWindow[f.StreamID] += int32(f.Increment)
	}
	a.flushPending(f.StreamID)
}

// finishStream closes state once both halves of the exchange are done and
// removes it from the routing table.
func (a *Actor) finishStream(streamID uint32, state *reqstate.State) {
	if !state.ReadyToClose() {
		return
	}
	st := state.GrpcStatus()
	var err error
	if st != nil && st.Code() != 0 {
		err = &rpcerr.GrpcError{Code: st.Code(), Message: st.Message()}
	}
	state.Close(err)
	delete(a.streams, streamID)
	delete(a.streamSendWindow, streamID)
	delete(a.pendingWrites, streamID)
	a.adjustStreamCount(-1)
	a.reportRPCEnd(streamID, err)
}

// abortStream terminates a single stream on a fatal per-request error
// without affecting any other stream. A Push-callback failure (a slow or
// failed subscriber) is a local cancellation of that stream and is reported
// as such, RST_STREAM(CANCEL); anything else (malformed frame, oversized
// message) is reported as RST_STREAM(INTERNAL_ERROR). err is passed through
// to state.Close unchanged, preserving its concrete type (e.g.
// *frame.DecodeError.ResourceExhausted) for the caller.
func (a *Actor) abortStream(streamID uint32, state *reqstate.State, err error) {
	code := http2.ErrCodeInternal
	var cancelled *rpcerr.CancelledError
	if errors.As(err, &cancelled) {
		code = http2.ErrCodeCancel
	}
	_ = a.framer.WriteRSTStream(streamID, code)
	delete(a.streams, streamID)
	delete(a.streamSendWindow, streamID)
	delete(a.pendingWrites, streamID)
	a.adjustStreamCount(-1)
	state.Close(err)
	a.reportRPCEnd(streamID, err)
}

func (a *Actor) replenishCredit(streamID uint32, n int) {
	_ = a.framer.WriteWindowUpdate(0, uint32(n))
	_ = a.framer.WriteWindowUpdate(streamID, uint32(n))
}

func (a *Actor) sendKeepalivePing() {
	var data [8]byte
	sent := time.Now()
	if err := a.framer.WritePing(false, data); err != nil {
		a.teardown(&rpcerr.TransportError{Cause: err})
		return
	}
	_ = sent // the run loop keeps its own send time and observes the RTT
	// when the PING ack arrives; pings are not keyed by their payload.
}

func (a *Actor) teardown(err error) {
	a.drainStreams(err)
	a.closeOnce.Do(func() {
		a.closeErr = err
		close(a.closeCh)
	})
	a.conn.Close()
	a.reportConnEnd()
}

func (a *Actor) drainStreams(err error) {
	for id, state := range a.streams {
		state.Close(err)
		delete(a.streams, id)
		a.reportRPCEnd(id, err)
	}
	a.activeStreams.Store(0)
	a.latency.SetStreamCount(0)
}
