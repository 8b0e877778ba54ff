// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame type constants. Unknown frame types are protocol violations.
const (
	// TypeControl carries a JSON control object with a required "op"
	// field. Bidirectional.
	TypeControl byte = 1

	// TypePaneOutput carries raw terminal bytes from the attached pane.
	// Host to client only.
	TypePaneOutput byte = 2

	// TypePaneInput carries raw terminal bytes for the attached pane's
	// PTY. Client to host only.
	TypePaneInput byte = 3
)

// MaxFrameLength is the maximum value of the wire length field, which
// counts the type byte plus the payload. The maximum payload is
// therefore MaxFrameLength-1 bytes.
const MaxFrameLength = 16 * 1024 * 1024

// frameHeaderLength is the fixed size of the length prefix.
const frameHeaderLength = 4

var (
	// ErrFrameTooLarge reports a frame whose declared or computed
	// length exceeds MaxFrameLength.
	ErrFrameTooLarge = errors.New("frame length exceeds maximum")

	// ErrZeroLength reports a frame with a declared length of zero,
	// which cannot hold even the type byte.
	ErrZeroLength = errors.New("frame length is zero")

	// ErrDecoderFailed is returned by Next after a fatal decode error.
	// The decoder refuses further work; the caller must close the
	// connection.
	ErrDecoderFailed = errors.New("decoder is in a failed state")
)

// Frame is a single decoded protocol frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// Encode serializes a frame for the wire. Returns ErrFrameTooLarge if
// 1 + len(payload) exceeds MaxFrameLength.
func Encode(frameType byte, payload []byte) ([]byte, error) {
	length := 1 + len(payload)
	if length > MaxFrameLength {
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrFrameTooLarge, len(payload))
	}
	out := make([]byte, frameHeaderLength+length)
	binary.LittleEndian.PutUint32(out[0:frameHeaderLength], uint32(length))
	out[frameHeaderLength] = frameType
	copy(out[frameHeaderLength+1:], payload)
	return out, nil
}

// compactThreshold is the consumed-prefix size above which the decoder
// shifts the residual buffer down to reclaim memory.
const compactThreshold = 64 * 1024

// Decoder is a streaming frame decoder. Feed it arbitrary byte chunks
// with Push and drain complete frames with Next. Partial frames are
// never yielded; bytes that do not yet form a complete frame are
// retained in a residual buffer.
//
// After the first fatal error (zero or oversized declared length) the
// decoder is poisoned: Push discards input and Next keeps returning an
// error. A single bad frame fails the whole connection — there is no
// resynchronization.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	buffer    []byte
	readIndex int
	err       error
}

// Push appends a chunk of raw bytes to the residual buffer.
func (d *Decoder) Push(chunk []byte) {
	if d.err != nil {
		return
	}
	d.buffer = append(d.buffer, chunk...)
}

// Next returns the next complete frame, or (nil, nil) if the buffered
// bytes do not yet form one. On a fatal decode error it returns the
// error, and every subsequent call returns ErrDecoderFailed.
func (d *Decoder) Next() (*Frame, error) {
	if d.err != nil {
		return nil, ErrDecoderFailed
	}

	available := len(d.buffer) - d.readIndex
	if available < frameHeaderLength {
		return nil, nil
	}

	length := binary.LittleEndian.Uint32(d.buffer[d.readIndex : d.readIndex+frameHeaderLength])
	if length == 0 {
		d.err = ErrZeroLength
		return nil, d.err
	}
	if length > MaxFrameLength {
		d.err = fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
		return nil, d.err
	}

	total := frameHeaderLength + int(length)
	if available < total {
		return nil, nil
	}

	typeIndex := d.readIndex + frameHeaderLength
	payload := make([]byte, length-1)
	copy(payload, d.buffer[typeIndex+1:d.readIndex+total])
	frame := &Frame{Type: d.buffer[typeIndex], Payload: payload}

	d.readIndex += total
	if d.readIndex == len(d.buffer) {
		// Fully consumed: reset to reclaim memory.
		d.buffer = d.buffer[:0]
		d.readIndex = 0
	} else if d.readIndex > compactThreshold {
		d.buffer = append(d.buffer[:0], d.buffer[d.readIndex:]...)
		d.readIndex = 0
	}

	return frame, nil
}

// Buffered returns the number of residual bytes awaiting a complete
// frame.
func (d *Decoder) Buffered() int {
	return len(d.buffer) - d.readIndex
}
