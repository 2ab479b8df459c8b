// Package subscribe implements the push-subscription delivery loop: it
// bridges the Connection Actor's inline, must-not-block Push callback into
// a dedicated goroutine that is free to call into user code (which may
// block) without risking the actor's single-threaded event loop.
package subscribe

import (
	"errors"
	"sync"

	"github.com/crazyfrankie/escore/mem"
)

// Kind distinguishes subscription notifications from any other message
// shape a Sink might conceivably receive.
type Kind int

// Event is presently the only Kind; it exists as a type (rather than
// Notification being a bare payload) so future notification shapes
// (e.g. a checkpoint marker) do not require breaking Sink's signature.
const Event Kind = 0

// Notification is what a Sink receives for each delivered message.
type Notification struct {
	Kind    Kind
	Payload any
}

// Sink consumes subscription notifications on Delivery's dedicated
// goroutine. It may block; only the Connection Actor's goroutine may not.
type Sink func(Notification)

// Decoder turns one decoded wire message into the notification payload
// delivered to Sink — the domain Event conversion, or a passthrough when
// the subscription was opened with the raw flag.
type Decoder func(data []byte) (any, error)

// ErrSlowConsumer is returned from Delivery.OnPush when the subscriber's
// mailbox is full, which cancels the subscription (per the design's
// silent-cancellation policy) rather than ever blocking the actor.
var ErrSlowConsumer = errors.New("subscribe: consumer not keeping up, subscription cancelled")

// Delivery owns the mailbox between the actor's Push callback and the
// subscriber's Sink.
type Delivery struct {
	mailbox chan Notification
	sink    Sink
	decode  Decoder

	closeOnce sync.Once
	done      chan struct{}
}

const defaultMailboxSize = 64

// NewDelivery starts the delivery loop and returns a Delivery ready to be
// installed as a Request Descriptor's OnPush. bufferSize bounds how far the
// subscriber may lag before it is considered slow; 0 uses a sensible
// default.
func NewDelivery(sink Sink, decode Decoder, bufferSize int) *Delivery {
	if bufferSize <= 0 {
		bufferSize = defaultMailboxSize
	}
	d := &Delivery{
		mailbox: make(chan Notification, bufferSize),
		sink:    sink,
		decode:  decode,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Delivery) run() {
	for {
		select {
		case n := <-d.mailbox:
			d.sink(n)
		case <-d.done:
			return
		}
	}
}

// OnPush decodes data inline and enqueues the result without blocking. It
// is the reqstate.OnPushFunc the subscription's Descriptor installs, so it
// runs synchronously on the Connection Actor's goroutine per §4.2/§5: it
// must never block, which is why a full mailbox fails fast with
// ErrSlowConsumer instead of waiting for the Sink to catch up.
func (d *Delivery) OnPush(b mem.Buffer) error {
	data := b.ReadOnlyData()
	payload, err := d.decode(data)
	b.Free()
	if err != nil {
		return err
	}

	select {
	case d.mailbox <- Notification{Kind: Event, Payload: payload}:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close stops the delivery loop. Idempotent.
func (d *Delivery) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
