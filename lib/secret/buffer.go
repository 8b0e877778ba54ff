// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Buffer holds secret bytes in mmap-backed memory that is locked into
// RAM (never swapped) and excluded from core dumps. The relay secret
// passes through a Buffer so it cannot leak via swap or crash dumps.
//
// Close zeroes and unmaps the memory. A Buffer is not safe for
// concurrent use.
type Buffer struct {
	data []byte
	used int
}

// NewFromBytes copies source into locked memory and zeroes source.
func NewFromBytes(source []byte) (*Buffer, error) {
	buffer, err := newBuffer(len(source))
	if err != nil {
		Zero(source)
		return nil, err
	}
	copy(buffer.data, source)
	buffer.used = len(source)
	Zero(source)
	return buffer, nil
}

// newBuffer maps and locks size bytes.
func newBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive")
	}
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	// Best effort: not all kernels support excluding mappings from
	// core dumps.
	unix.Madvise(data, unix.MADV_DONTDUMP)
	return &Buffer{data: data}, nil
}

// Bytes returns the secret bytes. The slice aliases locked memory and
// becomes invalid after Close.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.used]
}

// String returns the secret as a string. The returned string copies
// the bytes into normal memory; prefer Bytes where possible.
func (b *Buffer) String() string {
	return string(b.data[:b.used])
}

// Len returns the secret length in bytes.
func (b *Buffer) Len() int {
	return b.used
}

// Close zeroes, unlocks, and unmaps the buffer. Safe to call more
// than once.
func (b *Buffer) Close() error {
	if b.data == nil {
		return nil
	}
	Zero(b.data)
	unix.Munlock(b.data)
	err := unix.Munmap(b.data)
	b.data = nil
	b.used = 0
	if err != nil {
		return fmt.Errorf("secret: munmap: %w", err)
	}
	return nil
}

// Zero overwrites a byte slice with zeroes.
func Zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
