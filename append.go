package escore

import (
	"context"

	"google.golang.org/grpc/codes"

	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/internal/rpcerr"
)

const appendPath = "/event_store.client.streams.Streams/Append"

// EventData is one event to append: a type, a data payload, and optional
// metadata, all opaque to this client.
type EventData struct {
	Type     string
	Data     []byte
	Metadata []byte
}

func (c *Conn) buildAppendBody(streamName string, events []EventData, opts AppendOptions) (reqstate.BodyProducer, error) {
	optionsFrame, err := marshalWire(appendOptionsWire{
		Stream: streamName,
		Expect: expectationString(opts.Expect),
	})
	if err != nil {
		return nil, err
	}

	frames := make([][]byte, 0, len(events)+1)
	frames = append(frames, optionsFrame)
	for _, ev := range events {
		frame, err := marshalWire(eventWire{Type: ev.Type, Data: ev.Data, Metadata: ev.Metadata})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return reqstate.FromSlice(frames), nil
}

// Append is a client-streaming RPC: an options frame naming the stream and
// its expectation, followed by one frame per event. By default it returns
// only an error — nil on success, *ExpectationViolation if opts.Expect did
// not hold, *rpcerr.GrpcError for any other non-OK status. Set
// opts.Raw to also get the full AppendResult back on success.
func (c *Conn) Append(ctx context.Context, streamName string, events []EventData, opts AppendOptions) (AppendResult, error) {
	headers, err := c.requestHeaders(ctx)
	if err != nil {
		return AppendResult{}, err
	}
	body, err := c.buildAppendBody(streamName, events, opts)
	if err != nil {
		return AppendResult{}, err
	}

	desc := &reqstate.Descriptor{
		Path:        appendPath,
		Headers:     headers,
		Body:        body,
		Disposition: reqstate.Aggregate,
		Deadline:    deadlineFrom(opts.Timeout),
	}

	res, err := c.actor.Submit(ctx, desc)
	if err != nil {
		return AppendResult{}, err
	}
	if res.Status != nil && res.Status.Code() != codes.OK {
		freeAll(res.Messages)
		return AppendResult{}, &rpcerr.GrpcError{Code: res.Status.Code(), Message: res.Status.Message()}
	}
	if len(res.Messages) == 0 {
		return AppendResult{}, &rpcerr.GrpcError{Code: codes.Internal, Message: "escore: append received no response message"}
	}

	data := res.Messages[0].ReadOnlyData()
	var w appendResultWire
	decErr := unmarshalWire(data, &w)
	freeAll(res.Messages)
	if decErr != nil {
		return AppendResult{}, decErr
	}

	if !w.Success {
		return AppendResult{}, &rpcerr.ExpectationViolation{
			Expected: expectationString(opts.Expect),
			Current:  int64(w.CurrentRevision),
		}
	}

	result := AppendResult{Success: true, CurrentRevision: w.CurrentRevision, NextRevision: w.NextRevision}
	if !opts.Raw {
		return AppendResult{}, nil
	}
	return result, nil
}
