package escore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalWireRoundTrip(t *testing.T) {
	in := appendOptionsWire{Stream: "orders-1", Expect: "any"}

	raw, err := marshalWire(in)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	var out appendOptionsWire
	require.NoError(t, unmarshalWire(raw, &out))
	assert.Equal(t, in, out)
}

func TestExpectationString(t *testing.T) {
	assert.Equal(t, "any", expectationString(Any()))
	assert.Equal(t, "exists", expectationString(Exists()))
	assert.Equal(t, "empty", expectationString(Empty()))
	assert.Equal(t, "42", expectationString(ExpectRevision(42)))
}

func TestFormatUint(t *testing.T) {
	assert.Equal(t, "0", formatUint(0))
	assert.Equal(t, "9", formatUint(9))
	assert.Equal(t, "18446744073709551615", formatUint(18446744073709551615))
}
