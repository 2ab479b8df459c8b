// Package codec marshals and unmarshals the opaque message payloads carried
// inside gRPC frames. The concrete EventStore message schemas are an external
// collaborator (see the package doc of the root escore package); this package
// only knows how to turn a proto.Message into wire bytes and back, pooled
// through mem.BufferPool the way the rest of the connection path is.
package codec

import (
	"google.golang.org/protobuf/proto"

	"github.com/crazyfrankie/escore/mem"
)

// Codec marshals and unmarshals a single gRPC message payload.
type Codec interface {
	// Marshal encodes m into a pooled, ref-counted buffer slice.
	Marshal(m proto.Message) (mem.BufferSlice, error)
	// Unmarshal decodes data into m. It does not take ownership of data.
	Unmarshal(data mem.BufferSlice, m proto.Message) error
}

// Name identifies a Codec the way the wire's content-type subtype does
// (e.g. "application/grpc+proto" -> "proto").
const Name = "proto"

// protoCodec is the only Codec this client speaks; EventStore 20+ requires
// application/grpc+proto.
type protoCodec struct {
	pool mem.BufferPool
}

// New returns the default proto Codec, pooling scratch buffers from pool.
// A nil pool falls back to mem.DefaultBufferPool().
func New(pool mem.BufferPool) Codec {
	if pool == nil {
		pool = mem.DefaultBufferPool()
	}
	return &protoCodec{pool: pool}
}

func (c *protoCodec) Marshal(m proto.Message) (mem.BufferSlice, error) {
	raw, err := proto.Marshal(m)
	if err != nil {
		return nil, err
	}
	return mem.BufferSlice{mem.Copy(raw, c.pool)}, nil
}

func (c *protoCodec) Unmarshal(data mem.BufferSlice, m proto.Message) error {
	buf := data.Materialize()
	return proto.Unmarshal(buf, m)
}
