package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLowercasesKeys(t *testing.T) {
	md := New(map[string]string{"Authorization": "Bearer t0k3n"})
	assert.Equal(t, []string{"Bearer t0k3n"}, md.Get("authorization"))
	assert.Equal(t, []string{"Bearer t0k3n"}, md.Get("AUTHORIZATION"))
}

func TestSetAndAppend(t *testing.T) {
	md := MD{}
	md.Set("x-trace-id", "abc")
	md.Append("x-trace-id", "def")
	assert.Equal(t, []string{"abc", "def"}, md.Get("x-trace-id"))
}

func TestDelete(t *testing.T) {
	md := Pairs("k", "v")
	md.Delete("k")
	assert.Nil(t, md.Get("k"))
}

func TestJoin(t *testing.T) {
	a := Pairs("k", "v1")
	b := Pairs("k", "v2")
	joined := Join(a, b)
	assert.Equal(t, []string{"v1", "v2"}, joined.Get("k"))
}

func TestOutgoingContextRoundTrip(t *testing.T) {
	ctx := NewOutgoingContext(Pairs("k", "v"))
	md, ok := FromOutgoingContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, []string{"v"}, md.Get("k"))
}
