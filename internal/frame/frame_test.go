package frame_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/crazyfrankie/escore/internal/frame"
	"github.com/crazyfrankie/escore/mem"
)

func encodeAll(t *testing.T, payloads ...string) []byte {
	t.Helper()
	var wire []byte
	for _, p := range payloads {
		wire = frame.AppendMessage(wire, []byte(p))
	}
	return wire
}

func drain(t *testing.T, bufs []mem.Buffer) []string {
	t.Helper()
	got := make([]string, len(bufs))
	for i, b := range bufs {
		got[i] = string(b.ReadOnlyData())
		b.Free()
	}
	return got
}

func TestDecoderWholeChunk(t *testing.T) {
	wire := encodeAll(t, "hello", "", "world")

	d := frame.NewDecoder(mem.DefaultBufferPool(), 0)
	out, err := d.Decode(wire, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "", "world"}, drain(t, out))
}

func TestDecoderArbitraryChunking(t *testing.T) {
	payloads := []string{"first message", "", "a considerably longer second message body", "x"}
	wire := encodeAll(t, payloads...)

	// Feed the wire one byte at a time; the decoder must reassemble the
	// exact same sequence of messages regardless of how reads are split.
	d := frame.NewDecoder(mem.DefaultBufferPool(), 0)
	var got []string
	var out []mem.Buffer
	for i := 0; i < len(wire); i++ {
		var err error
		out, err = d.Decode(wire[i:i+1], out[:0])
		require.NoError(t, err)
		got = append(got, drain(t, out)...)
	}

	assert.Equal(t, payloads, got)
}

func TestDecoderOddChunkBoundaries(t *testing.T) {
	payloads := []string{"abc", "defgh", "ijklmnop"}
	wire := encodeAll(t, payloads...)

	for chunkSize := 1; chunkSize <= len(wire); chunkSize++ {
		d := frame.NewDecoder(mem.DefaultBufferPool(), 0)
		var got []string
		for off := 0; off < len(wire); off += chunkSize {
			end := off + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			out, err := d.Decode(wire[off:end], nil)
			require.NoError(t, err)
			got = append(got, drain(t, out)...)
		}
		assert.Equal(t, payloads, got, "chunk size %d", chunkSize)
	}
}

func TestDecoderResourceExhausted(t *testing.T) {
	wire := frame.AppendMessage(nil, []byte("this payload is too big"))

	d := frame.NewDecoder(mem.DefaultBufferPool(), 4)
	_, err := d.Decode(wire, nil)
	require.Error(t, err)

	var decodeErr *frame.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.True(t, decodeErr.ResourceExhausted)
}

func TestDecoderUnsupportedCompressionFlag(t *testing.T) {
	wire := frame.AppendMessage(nil, []byte("payload"))
	wire[0] = 1 // mark as compressed; only identity is registered

	d := frame.NewDecoder(mem.DefaultBufferPool(), 0)
	_, err := d.Decode(wire, nil)
	require.Error(t, err)

	var decodeErr *frame.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.False(t, decodeErr.ResourceExhausted)
}

func TestHTTPStatusToCode(t *testing.T) {
	cases := map[int]codes.Code{
		http.StatusBadRequest:          codes.Internal,
		http.StatusUnauthorized:        codes.Unauthenticated,
		http.StatusForbidden:           codes.PermissionDenied,
		http.StatusNotFound:            codes.Unimplemented,
		http.StatusTooManyRequests:     codes.Unavailable,
		http.StatusServiceUnavailable:  codes.Unavailable,
		http.StatusInternalServerError: codes.Unknown,
	}
	for httpStatus, want := range cases {
		assert.Equal(t, want, frame.HTTPStatusToCode(httpStatus))
	}
}

func TestTrailerStatus(t *testing.T) {
	trailer := http.Header{}
	trailer.Set("grpc-status", "5")
	trailer.Set("grpc-message", "stream%20not%20found")

	st, ok := frame.TrailerStatus(trailer)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "stream not found", st.Message())
}

func TestTrailerStatusMissing(t *testing.T) {
	_, ok := frame.TrailerStatus(http.Header{})
	assert.False(t, ok)
}
