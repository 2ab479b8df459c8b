package reqstate_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/escore/internal/frame"
	"github.com/crazyfrankie/escore/internal/reqstate"
	"github.com/crazyfrankie/escore/mem"
)

func encode(payloads ...string) []byte {
	var wire []byte
	for _, p := range payloads {
		wire = frame.AppendMessage(wire, []byte(p))
	}
	return wire
}

func TestStateAggregateCollectsAndReplies(t *testing.T) {
	desc := &reqstate.Descriptor{Path: "/x/Y", Disposition: reqstate.Aggregate}
	s := reqstate.New(1, desc, mem.DefaultBufferPool(), 0)

	require.NoError(t, s.HandleData(encode("a", "b")))

	trailer := http.Header{}
	trailer.Set("grpc-status", "0")
	s.HandleTrailers(trailer)
	require.True(t, s.ReadyToClose())

	s.Close(nil)

	res, err := s.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "a", string(res.Messages[0].ReadOnlyData()))
	assert.Equal(t, "b", string(res.Messages[1].ReadOnlyData()))
	for _, m := range res.Messages {
		m.Free()
	}
	assert.Equal(t, uint32(0), uint32(res.Status.Code()))
}

func TestStateAggregateNonOkStatusPreservesPartialMessages(t *testing.T) {
	desc := &reqstate.Descriptor{Path: "/x/Y", Disposition: reqstate.Aggregate}
	s := reqstate.New(3, desc, mem.DefaultBufferPool(), 0)

	require.NoError(t, s.HandleData(encode("partial")))

	trailer := http.Header{}
	trailer.Set("grpc-status", "5")
	trailer.Set("grpc-message", "not found")
	s.HandleTrailers(trailer)
	s.Close(nil)

	res, err := s.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "not found", res.Status.Message())
	res.Messages[0].Free()
}

func TestStateIteratorPullBlocksThenDeliversThenEnds(t *testing.T) {
	desc := &reqstate.Descriptor{Path: "/x/Y", Disposition: reqstate.Iterator}
	s := reqstate.New(5, desc, mem.DefaultBufferPool(), 0)

	type pulled struct {
		data string
		ok   bool
		err  error
	}
	results := make(chan pulled, 3)
	go func() {
		for i := 0; i < 3; i++ {
			msg, ok, err := s.Pull(context.Background())
			if ok {
				results <- pulled{data: string(msg.ReadOnlyData()), ok: ok, err: err}
				msg.Free()
			} else {
				results <- pulled{ok: ok, err: err}
			}
		}
	}()

	// Give the goroutine a chance to block on Pull before data arrives.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.HandleData(encode("one", "two")))

	first := <-results
	second := <-results
	assert.Equal(t, "one", first.data)
	assert.Equal(t, "two", second.data)

	s.Close(nil)
	third := <-results
	assert.False(t, third.ok)
	assert.NoError(t, third.err)
}

func TestStatePushInvokesCallbackInOrder(t *testing.T) {
	var got []string
	desc := &reqstate.Descriptor{
		Path:        "/x/Y",
		Disposition: reqstate.Push,
		OnPush: func(b mem.Buffer) error {
			got = append(got, string(b.ReadOnlyData()))
			b.Free()
			return nil
		},
	}
	s := reqstate.New(7, desc, mem.DefaultBufferPool(), 0)

	require.NoError(t, s.HandleData(encode("ev1", "ev2", "ev3")))
	assert.Equal(t, []string{"ev1", "ev2", "ev3"}, got)

	s.Close(nil)
}

func TestStatePushCallbackErrorPropagatesForCancellation(t *testing.T) {
	boom := assert.AnError
	desc := &reqstate.Descriptor{
		Path:        "/x/Y",
		Disposition: reqstate.Push,
		OnPush: func(b mem.Buffer) error {
			b.Free()
			return boom
		},
	}
	s := reqstate.New(9, desc, mem.DefaultBufferPool(), 0)

	err := s.HandleData(encode("ev1"))
	assert.ErrorIs(t, err, boom)
}

func TestStateOversizedFrameReportsResourceExhausted(t *testing.T) {
	desc := &reqstate.Descriptor{Path: "/x/Y", Disposition: reqstate.Aggregate}
	s := reqstate.New(11, desc, mem.DefaultBufferPool(), 4)

	err := s.HandleData(encode("way too big for the limit"))
	require.Error(t, err)

	var decodeErr *frame.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.True(t, decodeErr.ResourceExhausted)
}

func TestStateCloseIsIdempotent(t *testing.T) {
	desc := &reqstate.Descriptor{Path: "/x/Y", Disposition: reqstate.Aggregate}
	s := reqstate.New(13, desc, mem.DefaultBufferPool(), 0)

	s.Close(nil)
	s.Close(nil) // must not panic or send twice on the unbuffered-after-first reply channel

	res, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
}
