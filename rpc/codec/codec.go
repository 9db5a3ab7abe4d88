// Package codec implements the streaming length-prefixed frame codec from
// spec.md §4.7: a little-endian u32 length header followed by that many
// payload bytes, decoded by a two-state machine that tolerates arbitrary
// read fragmentation and resynchronizes on a bad length.
package codec

import "encoding/binary"

// MaxPayload is the largest payload the codec will decode or encode.
const MaxPayload = 4096

const headerSize = 4

type decoderState uint8

const (
	stateReadingHeader decoderState = iota
	stateReadingPayload
)

// Decoder is a streaming frame decoder. The zero value is ready to use.
// It is not safe for concurrent use; each Transport client owns one.
type Decoder struct {
	pending []byte

	state           decoderState
	header          [headerSize]byte
	headerCollected int

	expected  uint32
	payload   []byte
	collected int
}

// Feed appends data to the decoder's internal buffer and advances the
// state machine. It returns at most one complete frame per call — if data
// (or bytes already buffered from a previous call) contains more than one
// complete frame, the remainder stays buffered and is returned on a
// subsequent call, including a call with nil/empty data. The returned
// slice is only valid until the next call to Feed.
func (d *Decoder) Feed(data []byte) ([]byte, bool) {
	if len(data) > 0 {
		d.pending = append(d.pending, data...)
	}
	for {
		switch d.state {
		case stateReadingHeader:
			n := copy(d.header[d.headerCollected:], d.pending)
			d.headerCollected += n
			d.pending = d.pending[n:]
			if d.headerCollected < headerSize {
				return nil, false
			}
			length := binary.LittleEndian.Uint32(d.header[:])
			d.headerCollected = 0
			if length == 0 || length > MaxPayload {
				// Resynchronize: drop this header and try again with
				// whatever bytes remain.
				continue
			}
			d.expected = length
			d.payload = make([]byte, length)
			d.collected = 0
			d.state = stateReadingPayload
		case stateReadingPayload:
			n := copy(d.payload[d.collected:], d.pending)
			d.collected += n
			d.pending = d.pending[n:]
			if d.collected < int(d.expected) {
				return nil, false
			}
			frame := d.payload
			d.payload = nil
			d.state = stateReadingHeader
			return frame, true
		}
	}
}

// Reset clears all decoder state, discarding any partially buffered
// frame. Used on transport reconnect.
func (d *Decoder) Reset() {
	d.pending = nil
	d.state = stateReadingHeader
	d.headerCollected = 0
	d.expected = 0
	d.payload = nil
	d.collected = 0
}

// Encode writes the length-prefixed frame for payload into out and
// returns the number of bytes written. It returns false without writing
// anything if payload exceeds MaxPayload or out is too small.
func Encode(payload []byte, out []byte) (int, bool) {
	if len(payload) > MaxPayload {
		return 0, false
	}
	total := headerSize + len(payload)
	if len(out) < total {
		return 0, false
	}
	binary.LittleEndian.PutUint32(out[:headerSize], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return total, true
}
