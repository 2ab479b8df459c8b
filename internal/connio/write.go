package connio

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/crazyfrankie/escore/internal/frame"
	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/internal/rpcerr"
	"github.com/crazyfrankie/escore/stats"
)

func (a *Actor) handleRequest(op *requestOp) {
	streamID := a.nextStreamID
	a.nextStreamID += 2
	begin := time.Now()

	state := reqstate.New(streamID, op.desc, a.opts.Pool, a.opts.MaxReceiveMessageSize)
	a.streams[streamID] = state
	a.streamSendWindow[streamID] = defaultWindowSize
	a.adjustStreamCount(1)

	rpcCtx := context.Background()
	if a.statsHandler != nil {
		rpcCtx = a.statsHandler.TagRPC(rpcCtx, &stats.RPCTagInfo{FullMethodName: op.desc.Path})
		a.rpcStats[streamID] = rpcCallStats{ctx: rpcCtx, begin: begin}
		a.statsHandler.HandleRPC(rpcCtx, &stats.Begin{
			Client:         true,
			BeginTime:      begin,
			IsClientStream: true,
			IsServerStream: true,
		})
	}

	if err := a.writeHeaders(streamID, op.desc); err != nil {
		delete(a.streams, streamID)
		a.adjustStreamCount(-1)
		wrapped := &rpcerr.TransportError{Cause: err}
		a.reportRPCEnd(streamID, wrapped)
		op.reply <- requestAck{err: wrapped}
		return
	}

	op.reply <- requestAck{state: state}

	a.writeBody(streamID, state, op.desc.Body)
}

func (a *Actor) handleCancel(op *cancelOp) {
	state, ok := a.streams[op.handle.streamID]
	if !ok {
		op.reply <- nil
		return
	}

	_ = a.framer.WriteRSTStream(op.handle.streamID, http2.ErrCodeCancel)
	delete(a.streams, op.handle.streamID)
	delete(a.streamSendWindow, op.handle.streamID)
	delete(a.pendingWrites, op.handle.streamID)
	a.adjustStreamCount(-1)
	err := &rpcerr.CancelledError{}
	state.Close(err)
	a.reportRPCEnd(op.handle.streamID, err)
	op.reply <- nil
}

func (a *Actor) writeHeaders(streamID uint32, desc *reqstate.Descriptor) error {
	a.hpackBuf.Reset()

	write := func(name, value string) error {
		return a.hpackEnc.WriteField(hpack.HeaderField{Name: name, Value: value})
	}

	if err := write(":method", "POST"); err != nil {
		return err
	}
	scheme := "http"
	if a.opts.TLSConfig != nil {
		scheme = "https"
	}
	if err := write(":scheme", scheme); err != nil {
		return err
	}
	if err := write(":authority", a.opts.Authority); err != nil {
		return err
	}
	if err := write(":path", desc.Path); err != nil {
		return err
	}
	if err := write("content-type", "application/grpc+proto"); err != nil {
		return err
	}
	if err := write("te", "trailers"); err != nil {
		return err
	}
	if !desc.Deadline.IsZero() {
		if d := time.Until(desc.Deadline); d > 0 {
			if err := write("grpc-timeout", grpcTimeoutString(d)); err != nil {
				return err
			}
		}
	}
	for name, values := range desc.Headers {
		for _, v := range values {
			if err := write(name, v); err != nil {
				return err
			}
		}
	}

	return a.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: a.hpackBuf.Bytes(),
		EndHeaders:    true,
		EndStream:     false,
	})
}

// grpcTimeoutString renders d in the "grpc-timeout" header's <value><unit>
// form, always in whole milliseconds ("m"), rounding any fraction of a
// millisecond up so a short positive deadline never renders as "0m".
func grpcTimeoutString(d time.Duration) string {
	if d <= 0 {
		d = time.Millisecond
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	return fmt.Sprintf("%dm", int64(ms))
}

// writeBody drains body, framing each message with the gRPC length prefix
// and writing it as one or more DATA frames, then half-closes the stream
// locally. It respects the peer's advertised flow-control window, queuing
// unsent bytes until a WINDOW_UPDATE arrives.
func (a *Actor) writeBody(streamID uint32, state *reqstate.State, body reqstate.BodyProducer) {
	for {
		payload, ok := body.Next()
		if !ok {
			break
		}
		wire := frame.AppendMessage(nil, payload)
		a.writeOrQueue(streamID, wire, false)
		a.latency.AddBytesSent(int64(len(wire)))
		if a.statsHandler != nil {
			if rs, ok := a.rpcStats[streamID]; ok {
				a.statsHandler.HandleRPC(rs.ctx, &stats.OutPayload{
					Client:     true,
					Data:       payload,
					Length:     len(payload),
					WireLength: len(wire),
					SentTime:   time.Now(),
				})
			}
		}
	}

	state.MarkHalfClosedLocal()
	a.writeOrQueue(streamID, nil, true)
}

func (a *Actor) writeOrQueue(streamID uint32, data []byte, endStream bool) {
	if len(a.pendingWrites[streamID]) > 0 {
		a.pendingWrites[streamID] = append(a.pendingWrites[streamID], pendingFrame{data: data, endLocal: endStream})
		return
	}

	available := a.streamSendWindow[streamID]
	if available < a.connSendWindow {
		// stream-level window is the binding constraint
	} else {
		available = a.connSendWindow
	}

	if int32(len(data)) > available {
		if available > 0 {
			head, tail := data[:available], data[available:]
			_ = a.framer.WriteData(streamID, false, head)
			a.streamSendWindow[streamID] -= available
			a.connSendWindow -= available
			a.pendingWrites[streamID] = append(a.pendingWrites[streamID], pendingFrame{data: tail, endLocal: endStream})
			return
		}
		a.pendingWrites[streamID] = append(a.pendingWrites[streamID], pendingFrame{data: data, endLocal: endStream})
		return
	}

	_ = a.framer.WriteData(streamID, endStream && len(data) == 0, data)
	a.streamSendWindow[streamID] -= int32(len(data))
	a.connSendWindow -= int32(len(data))
	if endStream && len(data) > 0 {
		_ = a.framer.WriteData(streamID, true, nil)
	}
}

func (a *Actor) flushPending(streamID uint32) {
	if streamID == 0 {
		for id := range a.pendingWrites {
			a.flushOne(id)
		}
		return
	}
	a.flushOne(streamID)
}

func (a *Actor) flushOne(streamID uint32) {
	queue := a.pendingWrites[streamID]
	for len(queue) > 0 {
		pf := queue[0]
		available := a.streamSendWindow[streamID]
		if available > a.connSendWindow {
			available = a.connSendWindow
		}
		if available <= 0 && len(pf.data) > 0 {
			break
		}

		if int32(len(pf.data)) > available {
			head, tail := pf.data[:available], pf.data[available:]
			_ = a.framer.WriteData(streamID, false, head)
			a.streamSendWindow[streamID] -= available
			a.connSendWindow -= available
			queue[0] = pendingFrame{data: tail, endLocal: pf.endLocal}
			break
		}

		_ = a.framer.WriteData(streamID, pf.endLocal && len(pf.data) == 0, pf.data)
		a.streamSendWindow[streamID] -= int32(len(pf.data))
		a.connSendWindow -= int32(len(pf.data))
		if pf.endLocal && len(pf.data) > 0 {
			_ = a.framer.WriteData(streamID, true, nil)
		}
		queue = queue[1:]
	}
	if len(queue) == 0 {
		delete(a.pendingWrites, streamID)
	} else {
		a.pendingWrites[streamID] = queue
	}
}
