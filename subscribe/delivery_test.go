package subscribe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/escore/mem"
	"github.com/crazyfrankie/escore/subscribe"
)

func decodeUpper(data []byte) (any, error) {
	out := make([]byte, len(data))
	for i, c := range data {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out), nil
}

func TestDeliveryDecodesAndInvokesSinkInOrder(t *testing.T) {
	received := make(chan subscribe.Notification, 8)
	d := subscribe.NewDelivery(func(n subscribe.Notification) { received <- n }, decodeUpper, 4)
	defer d.Close()

	require.NoError(t, d.OnPush(mem.SliceBuffer("one")))
	require.NoError(t, d.OnPush(mem.SliceBuffer("two")))

	first := <-received
	second := <-received
	assert.Equal(t, "ONE", first.Payload)
	assert.Equal(t, "TWO", second.Payload)
	assert.Equal(t, subscribe.Event, first.Kind)
}

func TestDeliverySlowConsumerIsReportedNotBlocked(t *testing.T) {
	sink := func(subscribe.Notification) { time.Sleep(10 * time.Millisecond) }
	d := subscribe.NewDelivery(sink, decodeUpper, 1)
	defer d.Close()

	var lastErr error
	for i := 0; i < 10; i++ {
		lastErr = d.OnPush(mem.SliceBuffer("x"))
		if lastErr != nil {
			break
		}
	}
	assert.ErrorIs(t, lastErr, subscribe.ErrSlowConsumer)
}

func TestDeliveryCloseIsIdempotent(t *testing.T) {
	d := subscribe.NewDelivery(func(subscribe.Notification) {}, decodeUpper, 1)
	d.Close()
	d.Close()
}
