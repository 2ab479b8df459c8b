package escore

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/internal/rpcerr"
	"github.com/crazyfrankie/escore/mem"
	"github.com/crazyfrankie/escore/metadata"
)

const readPath = "/event_store.client.streams.Streams/Read"

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func (c *Conn) requestHeaders(ctx context.Context) (metadata.MD, error) {
	md := metadata.MD{}
	token, err := c.authHeader(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		md.Set("authorization", token)
	}
	return md, nil
}

func fromWireValue(f From) string {
	switch f.kind {
	case fromStart:
		return "start"
	case fromEnd:
		return "end"
	default:
		return formatUint(f.revision)
	}
}

func (c *Conn) buildReadPayload(streamName string, opts ReadOptions, maxCount int, subscribe bool) ([]byte, error) {
	return marshalWire(readOptionsWire{
		Stream:       streamName,
		All:          streamName == "",
		Backwards:    opts.Direction == Backwards,
		From:         fromWireValue(opts.From),
		MaxCount:     maxCount,
		ResolveLinks: opts.resolveLinks(),
		Filter:       opts.Filter,
		Subscribe:    subscribe,
	})
}

// ReadChunk issues one server-streaming Read RPC bounded by opts.MaxCount
// and returns every event it yields. An empty stream returns an empty
// slice and a nil error.
func (c *Conn) ReadChunk(ctx context.Context, streamName string, opts ReadOptions) ([]Event, error) {
	if opts.MaxCount <= 0 {
		opts.MaxCount = 100
	}

	headers, err := c.requestHeaders(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := c.buildReadPayload(streamName, opts, opts.MaxCount, false)
	if err != nil {
		return nil, err
	}

	desc := &reqstate.Descriptor{
		Path:        readPath,
		Headers:     headers,
		Body:        reqstate.Single(payload),
		Disposition: reqstate.Aggregate,
		Deadline:    deadlineFrom(opts.Timeout),
	}

	res, err := c.actor.Submit(ctx, desc)
	if err != nil {
		return nil, err
	}
	if res.Status != nil && res.Status.Code() != codes.OK {
		freeAll(res.Messages)
		return nil, &rpcerr.GrpcError{Code: res.Status.Code(), Message: res.Status.Message()}
	}

	events := make([]Event, 0, len(res.Messages))
	for _, m := range res.Messages {
		data := m.ReadOnlyData()
		if opts.Raw {
			events = append(events, Event{StreamName: streamName, Data: append([]byte(nil), data...)})
			m.Free()
			continue
		}
		ev, decErr := c.decode(data)
		m.Free()
		if decErr != nil {
			return nil, decErr
		}
		events = append(events, ev)
	}
	return events, nil
}

func freeAll(msgs []mem.Buffer) {
	for _, m := range msgs {
		m.Free()
	}
}
