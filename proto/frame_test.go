// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package proto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// decodeAll pushes data and drains every complete frame.
func decodeAll(t *testing.T, decoder *Decoder, data []byte) []*Frame {
	t.Helper()
	decoder.Push(data)
	var frames []*Frame
	for {
		frame, err := decoder.Next()
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if frame == nil {
			return frames
		}
		frames = append(frames, frame)
	}
}

// TestEncode_RoundTrip verifies decode(encode(t, s)) == (t, s).
func TestEncode_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("x"),
		[]byte("hello"),
		[]byte(`{"op":"list_panes"}`),
		bytes.Repeat([]byte{0xAB}, 100_000),
	}
	for _, payload := range payloads {
		encoded, err := Encode(TypeControl, payload)
		if err != nil {
			t.Fatalf("encode %d bytes: %v", len(payload), err)
		}

		decoder := &Decoder{}
		frames := decodeAll(t, decoder, encoded)
		if len(frames) != 1 {
			t.Fatalf("got %d frames, want 1", len(frames))
		}
		if frames[0].Type != TypeControl {
			t.Errorf("type = %d, want %d", frames[0].Type, TypeControl)
		}
		if !bytes.Equal(frames[0].Payload, payload) {
			t.Errorf("payload mismatch for %d-byte input", len(payload))
		}
		if decoder.Buffered() != 0 {
			t.Errorf("residual buffer has %d bytes, want 0", decoder.Buffered())
		}
	}
}

// TestEncode_WireLayout pins the byte-exact wire format: little-endian
// u32 length covering the type byte, then type, then payload.
func TestEncode_WireLayout(t *testing.T) {
	payload := []byte(`{"op":"list_panes"}`)
	encoded, err := Encode(TypeControl, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if len(encoded) != 4+1+len(payload) {
		t.Fatalf("encoded length = %d, want %d", len(encoded), 4+1+len(payload))
	}
	length := binary.LittleEndian.Uint32(encoded[0:4])
	if length != uint32(1+len(payload)) {
		t.Errorf("length field = %d, want %d", length, 1+len(payload))
	}
	if length != 20 {
		t.Errorf("length field = %d, want 20 for the 19-byte list_panes payload", length)
	}
	if encoded[4] != TypeControl {
		t.Errorf("type byte = %d, want %d", encoded[4], TypeControl)
	}
	if !bytes.Equal(encoded[5:], payload) {
		t.Errorf("payload bytes differ")
	}
}

// TestDecoder_SplitDelivery feeds one frame in two arbitrary halves:
// no frame until the second push, exactly one after, no residual.
func TestDecoder_SplitDelivery(t *testing.T) {
	payload := []byte(`{"op":"list_panes"}`)
	encoded, err := Encode(TypeControl, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoder := &Decoder{}
	decoder.Push(encoded[:10])
	frame, err := decoder.Next()
	if err != nil {
		t.Fatalf("decode after first half: %v", err)
	}
	if frame != nil {
		t.Fatalf("partial frame delivered after 10 bytes")
	}

	frames := decodeAll(t, decoder, encoded[10:])
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Type != TypeControl || !bytes.Equal(frames[0].Payload, payload) {
		t.Errorf("frame = (%d, %q), want (%d, %q)",
			frames[0].Type, frames[0].Payload, TypeControl, payload)
	}
	if decoder.Buffered() != 0 {
		t.Errorf("residual buffer has %d bytes, want 0", decoder.Buffered())
	}
}

// TestDecoder_ArbitraryChunking streams several frames byte-by-byte
// and verifies the decoded sequence equals the original.
func TestDecoder_ArbitraryChunking(t *testing.T) {
	var wire []byte
	want := []Frame{
		{Type: TypeControl, Payload: []byte(`{"op":"attach","pane_id":1}`)},
		{Type: TypePaneOutput, Payload: []byte("hello")},
		{Type: TypePaneInput, Payload: []byte("ls\n")},
		{Type: TypePaneOutput, Payload: []byte{0}},
	}
	for _, frame := range want {
		encoded, err := Encode(frame.Type, frame.Payload)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		wire = append(wire, encoded...)
	}

	decoder := &Decoder{}
	var got []*Frame
	for _, b := range wire {
		got = append(got, decodeAll(t, decoder, []byte{b})...)
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Type != want[i].Type || !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("frame %d = (%d, %q), want (%d, %q)",
				i, got[i].Type, got[i].Payload, want[i].Type, want[i].Payload)
		}
	}
}

// TestDecoder_BoundaryLengths covers length 1 (empty payload), the
// maximum, and both rejections.
func TestDecoder_BoundaryLengths(t *testing.T) {
	// Length exactly 1: a frame with only a type byte.
	encoded, err := Encode(TypePaneOutput, nil)
	if err != nil {
		t.Fatalf("encode empty payload: %v", err)
	}
	decoder := &Decoder{}
	frames := decodeAll(t, decoder, encoded)
	if len(frames) != 1 || len(frames[0].Payload) != 0 {
		t.Fatalf("length-1 frame not accepted")
	}

	// Maximum payload encodes.
	if _, err := Encode(TypePaneOutput, make([]byte, MaxFrameLength-1)); err != nil {
		t.Errorf("max-length frame rejected: %v", err)
	}
	// One over fails.
	if _, err := Encode(TypePaneOutput, make([]byte, MaxFrameLength)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized encode error = %v, want ErrFrameTooLarge", err)
	}

	// Declared length of zero is fatal.
	zeroDecoder := &Decoder{}
	zeroDecoder.Push([]byte{0, 0, 0, 0})
	if _, err := zeroDecoder.Next(); !errors.Is(err, ErrZeroLength) {
		t.Errorf("zero-length decode error = %v, want ErrZeroLength", err)
	}

	// Declared length over the maximum is fatal.
	bigDecoder := &Decoder{}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, MaxFrameLength+1)
	bigDecoder.Push(header)
	if _, err := bigDecoder.Next(); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized decode error = %v, want ErrFrameTooLarge", err)
	}

	// A declared length of exactly MaxFrameLength is accepted once the
	// bytes arrive.
	maxDecoder := &Decoder{}
	maxHeader := make([]byte, 4)
	binary.LittleEndian.PutUint32(maxHeader, MaxFrameLength)
	maxDecoder.Push(maxHeader)
	if frame, err := maxDecoder.Next(); err != nil || frame != nil {
		t.Fatalf("header-only push: frame=%v err=%v", frame, err)
	}
}

// TestDecoder_PoisonedAfterError verifies the decoder refuses further
// work after a fatal error.
func TestDecoder_PoisonedAfterError(t *testing.T) {
	decoder := &Decoder{}
	decoder.Push([]byte{0, 0, 0, 0})
	if _, err := decoder.Next(); err == nil {
		t.Fatalf("bad frame not rejected")
	}

	// A valid frame pushed afterwards is ignored.
	valid, _ := Encode(TypeControl, []byte("{}"))
	decoder.Push(valid)
	if _, err := decoder.Next(); !errors.Is(err, ErrDecoderFailed) {
		t.Errorf("post-error Next = %v, want ErrDecoderFailed", err)
	}
}
