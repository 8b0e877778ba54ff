// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"bytes"
	"testing"
)

// TestRingBuffer_SnapshotBeforeWrap returns everything written.
func TestRingBuffer_SnapshotBeforeWrap(t *testing.T) {
	ring := NewRingBuffer(64)
	if ring.Snapshot() != nil {
		t.Errorf("empty ring snapshot not nil")
	}

	ring.Write([]byte("hello "))
	ring.Write([]byte("world"))

	if got := ring.Snapshot(); !bytes.Equal(got, []byte("hello world")) {
		t.Errorf("snapshot = %q, want %q", got, "hello world")
	}
	if ring.Len() != 11 {
		t.Errorf("len = %d, want 11", ring.Len())
	}
}

// TestRingBuffer_WrapKeepsNewest verifies the oldest bytes fall off.
func TestRingBuffer_WrapKeepsNewest(t *testing.T) {
	ring := NewRingBuffer(8)
	ring.Write([]byte("abcdefgh"))
	ring.Write([]byte("1234"))

	if got := ring.Snapshot(); !bytes.Equal(got, []byte("efgh1234")) {
		t.Errorf("snapshot = %q, want %q", got, "efgh1234")
	}
	if ring.Len() != 8 {
		t.Errorf("len = %d, want 8", ring.Len())
	}
}

// TestRingBuffer_WriteLargerThanCapacity keeps the tail.
func TestRingBuffer_WriteLargerThanCapacity(t *testing.T) {
	ring := NewRingBuffer(4)
	ring.Write([]byte("0123456789"))

	if got := ring.Snapshot(); !bytes.Equal(got, []byte("6789")) {
		t.Errorf("snapshot = %q, want %q", got, "6789")
	}
}
