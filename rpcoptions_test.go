package escore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadOptionsResolveLinksDefaultsTrue(t *testing.T) {
	var o ReadOptions
	assert.True(t, o.resolveLinks())

	f := false
	o.ResolveLinks = &f
	assert.False(t, o.resolveLinks())
}

func TestFromWireValue(t *testing.T) {
	assert.Equal(t, "start", fromWireValue(Start()))
	assert.Equal(t, "end", fromWireValue(End()))
	assert.Equal(t, "17", fromWireValue(AtRevision(17)))
}

func TestExpectationConstructors(t *testing.T) {
	assert.Equal(t, expectAny, Any().kind)
	assert.Equal(t, expectExists, Exists().kind)
	assert.Equal(t, expectEmpty, Empty().kind)
	e := ExpectRevision(5)
	assert.Equal(t, expectRevision, e.kind)
	assert.Equal(t, uint64(5), e.revision)
}
