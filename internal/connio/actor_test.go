package connio

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/crazyfrankie/escore/internal/reqstate"
)

func TestGrpcTimeoutString(t *testing.T) {
	assert.Equal(t, "5000m", grpcTimeoutString(5*time.Second))
	assert.Equal(t, "1m", grpcTimeoutString(500*time.Microsecond))
}

func TestHandshakeWritesPrefaceAndSettings(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a := newActor(client, Options{})

	done := make(chan error, 1)
	go func() { done <- a.handshake() }()

	preface := make([]byte, len(http2.ClientPreface))
	_, err := io.ReadFull(server, preface)
	require.NoError(t, err)
	assert.Equal(t, http2.ClientPreface, string(preface))

	serverFramer := http2.NewFramer(server, server)
	fr, err := serverFramer.ReadFrame()
	require.NoError(t, err)
	_, ok := fr.(*http2.SettingsFrame)
	assert.True(t, ok)

	require.NoError(t, <-done)
}

func TestWriteHeadersEncodesPseudoAndRegularHeaders(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a := newActor(client, Options{Authority: "eventstore.local:2113"})

	desc := &reqstate.Descriptor{
		Path:    "/event_store.client.streams.Streams/Read",
		Headers: map[string][]string{"authorization": {"Bearer t0k3n"}},
	}

	writeErr := make(chan error, 1)
	go func() { writeErr <- a.writeHeaders(1, desc) }()

	serverFramer := http2.NewFramer(io.Discard, server)
	serverFramer.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	fr, err := serverFramer.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-writeErr)

	mh, ok := fr.(*http2.MetaHeadersFrame)
	require.True(t, ok)

	got := map[string]string{}
	for _, f := range mh.Fields {
		got[f.Name] = f.Value
	}

	assert.Equal(t, "POST", got[":method"])
	assert.Equal(t, "eventstore.local:2113", got[":authority"])
	assert.Equal(t, desc.Path, got[":path"])
	assert.Equal(t, "application/grpc+proto", got["content-type"])
	assert.Equal(t, "trailers", got["te"])
	assert.Equal(t, "Bearer t0k3n", got["authorization"])
}
