package codec

import (
	"bytes"
	"math/rand"
	"testing"
)

// TestCodecPartialReads is concrete scenario 4.
func TestCodecPartialReads(t *testing.T) {
	var d Decoder
	var got [][]byte

	if f, ok := d.Feed([]byte{0x04, 0x00, 0x00, 0x00, 0x41, 0x42}); ok {
		got = append(got, f)
	}
	if f, ok := d.Feed([]byte{0x43, 0x44}); ok {
		got = append(got, f)
	}
	if f, ok := d.Feed([]byte{0x04, 0x00, 0x00, 0x00, 0x45, 0x46, 0x47, 0x48}); ok {
		got = append(got, f)
	}

	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2: %v", len(got), got)
	}
	if string(got[0]) != "ABCD" {
		t.Fatalf("frame 0 = %q, want ABCD", got[0])
	}
	if string(got[1]) != "EFGH" {
		t.Fatalf("frame 1 = %q, want EFGH", got[1])
	}
}

func TestFeedYieldsOneFrameAtATimeWhenMultipleArrive(t *testing.T) {
	var d Decoder
	var buf []byte
	buf = append(buf, encodeOrFatal(t, []byte("one"))...)
	buf = append(buf, encodeOrFatal(t, []byte("two"))...)

	f1, ok := d.Feed(buf)
	if !ok || string(f1) != "one" {
		t.Fatalf("first feed = %q, %v", f1, ok)
	}
	f2, ok := d.Feed(nil)
	if !ok || string(f2) != "two" {
		t.Fatalf("second feed (no new bytes) = %q, %v", f2, ok)
	}
	if _, ok := d.Feed(nil); ok {
		t.Fatal("expected no third frame")
	}
}

func encodeOrFatal(t *testing.T, payload []byte) []byte {
	t.Helper()
	out := make([]byte, headerSize+len(payload))
	n, ok := Encode(payload, out)
	if !ok {
		t.Fatalf("encode failed for %q", payload)
	}
	return out[:n]
}

// TestCodecRoundTrip is testable property 8.
func TestCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, size := range []int{0 + 1, 1, 17, 255, 4096} {
		payload := make([]byte, size)
		rng.Read(payload)
		out := make([]byte, headerSize+size)
		n, ok := Encode(payload, out)
		if !ok {
			t.Fatalf("encode failed for size %d", size)
		}
		var d Decoder
		frame, ok := d.Feed(out[:n])
		if !ok {
			t.Fatalf("decode failed for size %d", size)
		}
		if !bytes.Equal(frame, payload) {
			t.Fatalf("round trip mismatch at size %d", size)
		}
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	out := make([]byte, MaxPayload+headerSize+1)
	if _, ok := Encode(make([]byte, MaxPayload+1), out); ok {
		t.Fatal("expected encode to reject an oversize payload")
	}
}

func TestEncodeRejectsUndersizeOutput(t *testing.T) {
	out := make([]byte, 3)
	if _, ok := Encode([]byte("abcd"), out); ok {
		t.Fatal("expected encode to reject a too-small output buffer")
	}
}

func TestZeroLengthHeaderResyncs(t *testing.T) {
	var d Decoder
	var input []byte
	input = append(input, 0x00, 0x00, 0x00, 0x00) // invalid zero length
	input = append(input, encodeOrFatal(t, []byte("ok"))...)

	frame, ok := d.Feed(input)
	if !ok || string(frame) != "ok" {
		t.Fatalf("expected resync to recover next frame, got %q, %v", frame, ok)
	}
}

func TestOversizeLengthHeaderResyncs(t *testing.T) {
	var d Decoder
	var badLen [4]byte
	badLen[0] = 0xFF
	badLen[1] = 0xFF
	badLen[2] = 0xFF
	badLen[3] = 0xFF // way over MaxPayload
	input := append(badLen[:], encodeOrFatal(t, []byte("recovered"))...)

	frame, ok := d.Feed(input)
	if !ok || string(frame) != "recovered" {
		t.Fatalf("expected resync to recover next frame, got %q, %v", frame, ok)
	}
}

// TestCodecResyncAfterReset is testable property 9.
func TestCodecResyncAfterReset(t *testing.T) {
	var d Decoder
	d.Feed([]byte{0x10, 0x00, 0x00, 0x00, 0x01, 0x02}) // partial, mid-payload
	d.Reset()
	frame, ok := d.Feed(encodeOrFatal(t, []byte("fresh")))
	if !ok || string(frame) != "fresh" {
		t.Fatalf("expected a clean decode after reset, got %q, %v", frame, ok)
	}
}
