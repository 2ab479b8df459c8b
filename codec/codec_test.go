package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/crazyfrankie/escore/codec"
	"github.com/crazyfrankie/escore/mem"
)

func TestProtoCodecRoundTrip(t *testing.T) {
	c := codec.New(mem.DefaultBufferPool())

	in := wrapperspb.Bytes([]byte("event-payload"))
	data, err := c.Marshal(in)
	require.NoError(t, err)
	defer data.Free()

	out := &wrapperspb.BytesValue{}
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, in.GetValue(), out.GetValue())
}

func TestProtoCodecEmptyMessage(t *testing.T) {
	c := codec.New(nil)

	data, err := c.Marshal(&wrapperspb.BytesValue{})
	require.NoError(t, err)
	defer data.Free()

	out := &wrapperspb.BytesValue{}
	require.NoError(t, c.Unmarshal(data, out))
	assert.Empty(t, out.GetValue())
}
