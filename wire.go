package escore

import (
	"encoding/json"
	"strconv"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/crazyfrankie/escore/codec"
	"github.com/crazyfrankie/escore/mem"
)

var wireCodec = codec.New(nil)

// The concrete EventStore message schemas are out of scope (§1); this file
// defines the small stand-in wire shapes this client actually encodes and
// decodes, JSON inside a wrapperspb.BytesValue "opaque" proto.Message, so
// the rest of the package has something concrete to marshal/unmarshal
// through codec.Codec end-to-end. A deployment speaking the real schemas
// would replace only this file.

type readOptionsWire struct {
	Stream       string         `json:"stream"`
	All          bool           `json:"all,omitempty"`
	Backwards    bool           `json:"backwards,omitempty"`
	From         string         `json:"from"`
	MaxCount     int            `json:"max_count"`
	ResolveLinks bool           `json:"resolve_links"`
	Filter       *FilterOptions `json:"filter,omitempty"`
	Subscribe    bool           `json:"subscribe,omitempty"`
}

type eventWire struct {
	Type     string `json:"type"`
	Data     []byte `json:"data"`
	Metadata []byte `json:"metadata"`
}

type readResultWire struct {
	Stream   string `json:"stream"`
	Revision uint64 `json:"revision"`
	Type     string `json:"type"`
	Data     []byte `json:"data"`
	Metadata []byte `json:"metadata"`
}

type appendOptionsWire struct {
	Stream string `json:"stream"`
	Expect string `json:"expect"`
}

type appendResultWire struct {
	Success         bool   `json:"success"`
	CurrentRevision uint64 `json:"current_revision"`
	NextRevision    uint64 `json:"next_revision"`
}

type deleteRequestWire struct {
	Stream    string `json:"stream"`
	Expect    string `json:"expect"`
	Tombstone bool   `json:"tombstone"`
}

func marshalWire(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	bs, err := wireCodec.Marshal(wrapperspb.Bytes(raw))
	if err != nil {
		return nil, err
	}
	defer bs.Free()
	return bs.Materialize(), nil
}

func unmarshalWire(wireBytes []byte, v any) error {
	var wrapper wrapperspb.BytesValue
	if err := wireCodec.Unmarshal(mem.BufferSlice{mem.SliceBuffer(wireBytes)}, &wrapper); err != nil {
		return err
	}
	return json.Unmarshal(wrapper.GetValue(), v)
}

func expectationString(e Expectation) string {
	switch e.kind {
	case expectExists:
		return "exists"
	case expectEmpty:
		return "empty"
	case expectRevision:
		return formatUint(e.revision)
	default:
		return "any"
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
