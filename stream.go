package escore

import (
	"context"
	"errors"
	"iter"

	"github.com/crazyfrankie/escore/streamread"
)

// errRawStreamUnsupported is returned by Stream when opts.Raw is set: a raw
// Event carries no revision (see ReadChunk), so the cursor Stream advances
// between chunks would stick at AtRevision(0) and re-read the same chunk
// forever.
var errRawStreamUnsupported = errors.New("escore: Stream does not support ReadOptions.Raw; use ReadChunk directly")

// Stream reads an EventStore stream lazily, issuing one Read RPC per chunk
// of opts.ChunkSize events. The returned function is not restartable in
// place: ranging over the same call twice reissues the chunk sequence from
// opts.From both times.
func (c *Conn) Stream(streamName string, opts ReadOptions) func(context.Context) iter.Seq2[Event, error] {
	if opts.Raw {
		return func(context.Context) iter.Seq2[Event, error] {
			return func(yield func(Event, error) bool) {
				yield(Event{}, errRawStreamUnsupported)
			}
		}
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 100
	}

	fetch := func(ctx context.Context, cursor any) ([]Event, any, error) {
		chunkOpts := opts
		chunkOpts.From = cursor.(From)
		chunkOpts.MaxCount = chunkSize

		events, err := c.ReadChunk(ctx, streamName, chunkOpts)
		if err != nil {
			return nil, nil, err
		}
		if len(events) == 0 {
			return nil, nil, nil
		}
		return events, AtRevision(events[len(events)-1].Revision), nil
	}

	return streamread.New(fetch, opts.From)
}
