package escore

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/crazyfrankie/escore/internal/frame"
	"github.com/crazyfrankie/escore/mem"
)

// Event is the domain object a read/stream/subscribe operation yields. The
// EventStore message schema it is converted from is an external
// collaborator; Event is defined only by that conversion contract
// (EventDecoder below), not by this package owning the wire schema.
type Event struct {
	StreamName string
	Revision   uint64
	EventType  string
	Data       []byte
	Metadata   []byte
}

// EventDecoder converts one decoded response payload into a domain Event.
// The Raw option bypasses this entirely and hands back the undecoded bytes.
type EventDecoder func(data []byte) (Event, error)

// defaultEventDecoder is the stand-in "from_read_response" conversion: it
// unwraps the payload as the opaque wrapperspb.BytesValue this client
// actually knows how to speak (see the package doc on codec.Codec) and
// decodes the JSON readResultWire inside it (see wire.go) into the Event's
// fields. A real EventStore deployment's generated message types would
// replace this function; callers may supply their own via
// Conn.WithEventDecoder without otherwise touching this client.
func defaultEventDecoder(data []byte) (Event, error) {
	var msg wrapperspb.BytesValue
	if err := wireCodec.Unmarshal(mem.BufferSlice{mem.SliceBuffer(data)}, &msg); err != nil {
		return Event{}, &frame.DecodeError{Msg: "escore: decoding read response: " + err.Error()}
	}
	var w readResultWire
	if err := json.Unmarshal(msg.GetValue(), &w); err != nil {
		return Event{}, &frame.DecodeError{Msg: "escore: decoding read response: " + err.Error()}
	}
	return Event{
		StreamName: w.Stream,
		Revision:   w.Revision,
		EventType:  w.Type,
		Data:       w.Data,
		Metadata:   w.Metadata,
	}, nil
}
