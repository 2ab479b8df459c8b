// Package frame implements the gRPC length-prefixed message framing used on
// top of HTTP/2 DATA frames: a 1-byte compression flag, a 4-byte big-endian
// length, and the message payload. A Decoder tolerates payloads split across
// an arbitrary number of DATA frames or TCP reads; callers feed it whatever
// bytes arrived and drain however many complete messages that produced.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/crazyfrankie/escore/mem"
)

// HeaderLen is the size of the length-prefix header preceding every message.
const HeaderLen = 5

// DecodeError reports a framing violation: a compression flag this client
// does not support, or a message larger than the configured limit.
type DecodeError struct {
	Msg             string
	ResourceExhausted bool
}

func (e *DecodeError) Error() string { return e.Msg }

// Decoder reassembles length-prefixed messages from a stream of byte chunks.
// It is not safe for concurrent use; the connection actor that owns the
// stream serializes calls to Decode.
type Decoder struct {
	pool        mem.BufferPool
	maxRecvSize uint32

	header    [HeaderLen]byte
	headerOff int

	payload    *[]byte
	payloadOff int
	payloadLen uint32
}

// NewDecoder returns a Decoder pulling scratch buffers from pool. A
// maxRecvSize of 0 disables the per-message size limit.
func NewDecoder(pool mem.BufferPool, maxRecvSize uint32) *Decoder {
	if pool == nil {
		pool = mem.DefaultBufferPool()
	}
	return &Decoder{pool: pool, maxRecvSize: maxRecvSize}
}

// Decode consumes chunk, appending any messages it completes to out, and
// returns the grown slice. Decode retains no reference to chunk once it
// returns: header bytes are copied into the Decoder, payload bytes into
// pool-backed buffers owned by the returned messages. Callers must Free()
// each returned buffer once done with it.
func (d *Decoder) Decode(chunk []byte, out []mem.Buffer) ([]mem.Buffer, error) {
	for len(chunk) > 0 {
		if d.payload == nil {
			n := copy(d.header[d.headerOff:], chunk)
			d.headerOff += n
			chunk = chunk[n:]
			if d.headerOff < HeaderLen {
				return out, nil
			}

			if compressed := d.header[0]; compressed != 0 {
				d.reset()
				return out, &DecodeError{Msg: fmt.Sprintf("frame: unsupported compressed-flag byte %d, only identity encoding is registered", compressed)}
			}

			length := binary.BigEndian.Uint32(d.header[1:5])
			if d.maxRecvSize > 0 && length > d.maxRecvSize {
				d.reset()
				return out, &DecodeError{
					Msg:               fmt.Sprintf("frame: message of %d bytes exceeds max receive size %d", length, d.maxRecvSize),
					ResourceExhausted: true,
				}
			}

			d.payloadLen = length
			d.payload = d.pool.Get(int(length))
			d.payloadOff = 0
			continue
		}

		n := copy((*d.payload)[d.payloadOff:], chunk)
		d.payloadOff += n
		chunk = chunk[n:]
		if uint32(d.payloadOff) < d.payloadLen {
			return out, nil
		}

		out = append(out, mem.NewBuffer(d.payload, d.pool))
		d.reset()
	}

	// A zero-length message completes as soon as its header is read, even
	// with no payload bytes left in this chunk to copy.
	if d.payload != nil && uint32(d.payloadOff) >= d.payloadLen {
		out = append(out, mem.NewBuffer(d.payload, d.pool))
		d.reset()
	}

	return out, nil
}

func (d *Decoder) reset() {
	d.headerOff = 0
	d.payload = nil
	d.payloadOff = 0
	d.payloadLen = 0
}

// AppendMessage appends payload to dst as a single length-prefixed, identity
// (uncompressed) encoded frame, growing dst as needed, and returns it.
func AppendMessage(dst []byte, payload []byte) []byte {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst
}
