package escore

import (
	"context"

	"google.golang.org/grpc/codes"

	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/internal/rpcerr"
)

const (
	deletePath    = "/event_store.client.streams.Streams/Delete"
	tombstonePath = "/event_store.client.streams.Streams/Tombstone"
)

// Delete removes a stream: a soft delete by default, or a permanent
// tombstone when opts.Tombstone is set. It returns *ExpectationViolation if
// opts.Expect did not hold.
func (c *Conn) Delete(ctx context.Context, streamName string, opts DeleteOptions) error {
	headers, err := c.requestHeaders(ctx)
	if err != nil {
		return err
	}
	payload, err := marshalWire(deleteRequestWire{
		Stream:    streamName,
		Expect:    expectationString(opts.Expect),
		Tombstone: opts.Tombstone,
	})
	if err != nil {
		return err
	}

	path := deletePath
	if opts.Tombstone {
		path = tombstonePath
	}

	desc := &reqstate.Descriptor{
		Path:        path,
		Headers:     headers,
		Body:        reqstate.Single(payload),
		Disposition: reqstate.Aggregate,
		Deadline:    deadlineFrom(opts.Timeout),
	}

	res, err := c.actor.Submit(ctx, desc)
	if err != nil {
		return err
	}
	if res.Status != nil && res.Status.Code() != codes.OK {
		freeAll(res.Messages)
		if res.Status.Code() == codes.FailedPrecondition {
			return &rpcerr.ExpectationViolation{Expected: expectationString(opts.Expect), Current: -1}
		}
		return &rpcerr.GrpcError{Code: res.Status.Code(), Message: res.Status.Message()}
	}
	freeAll(res.Messages)
	return nil
}
