package escore

import (
	"context"
	"time"

	"github.com/crazyfrankie/escore/internal/connio"
	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/subscribe"
)

// SubscriptionHandle identifies a live push subscription by the stream id of
// the request state Subscribe opened. It holds no reference to the Conn that
// returned it and is only valid for that Conn: another Conn's Cancel acts on
// whatever stream it has under the same id.
type SubscriptionHandle struct {
	handle connio.Handle
}

func (c *Conn) subscribeDecoder(raw bool) subscribe.Decoder {
	return func(data []byte) (any, error) {
		if raw {
			return Event{Data: append([]byte(nil), data...)}, nil
		}
		return c.decode(data)
	}
}

// Subscribe opens a server-streaming catch-up subscription: sink is called
// once per event, on a dedicated goroutine, for as long as the subscription
// stays open. Subscribe returns once the server has acknowledged the
// request; it does not wait for the subscription to end.
func (c *Conn) Subscribe(ctx context.Context, sink subscribe.Sink, streamName string, opts ReadOptions) (SubscriptionHandle, error) {
	headers, err := c.requestHeaders(ctx)
	if err != nil {
		return SubscriptionHandle{}, err
	}
	payload, err := c.buildReadPayload(streamName, opts, opts.MaxCount, true)
	if err != nil {
		return SubscriptionHandle{}, err
	}

	delivery := subscribe.NewDelivery(sink, c.subscribeDecoder(opts.Raw), opts.ChunkSize)

	desc := &reqstate.Descriptor{
		Path:        readPath,
		Headers:     headers,
		Body:        reqstate.Single(payload),
		Disposition: reqstate.Push,
		OnPush:      delivery.OnPush,
		Deadline:    deadlineFrom(opts.Timeout),
	}

	h, err := c.actor.SubmitPush(ctx, desc)
	if err != nil {
		delivery.Close()
		return SubscriptionHandle{}, err
	}
	go func() {
		<-h.Done()
		delivery.Close()
	}()
	return SubscriptionHandle{handle: h}, nil
}

// Cancel ends a subscription opened by Subscribe. It is idempotent: an
// already-ended subscription, or one the connection no longer recognizes,
// both report success.
func (c *Conn) Cancel(ctx context.Context, handle SubscriptionHandle, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.actor.Cancel(ctx, handle.handle)
}
