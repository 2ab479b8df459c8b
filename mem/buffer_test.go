package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBufferBelowThresholdUsesSliceBuffer(t *testing.T) {
	data := []byte("small")
	buf := NewBuffer(&data, nil)
	_, ok := buf.(SliceBuffer)
	assert.True(t, ok)
	assert.Equal(t, "small", string(buf.ReadOnlyData()))
}

func TestNewBufferAboveThresholdUsesPool(t *testing.T) {
	data := make([]byte, bufferPoolingThreshold+1)
	pool := DefaultBufferPool()
	buf := NewBuffer(&data, pool)
	_, ok := buf.(*buffer)
	require.True(t, ok)
	assert.Equal(t, len(data), buf.Len())
	buf.Free()
}

func TestBufferRefCountingFreesOnLastRelease(t *testing.T) {
	data := make([]byte, bufferPoolingThreshold+1)
	buf := NewBuffer(&data, DefaultBufferPool())
	buf.Ref()

	buf.Free()
	assert.NotPanics(t, func() { buf.ReadOnlyData() })

	buf.Free()
	assert.Panics(t, func() { buf.ReadOnlyData() })
}

func TestSplit(t *testing.T) {
	data := []byte("hello world")
	buf := NewBuffer(&data, nil)
	left, right := Split(buf, 5)
	assert.Equal(t, "hello", string(left.ReadOnlyData()))
	assert.Equal(t, " world", string(right.ReadOnlyData()))
}
