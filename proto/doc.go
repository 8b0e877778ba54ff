// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package proto implements the Lucidity wire protocol: length-prefixed
// typed frames over a byte stream, and the JSON control vocabulary
// carried inside control frames.
//
// The frame format is little-endian:
//
//	[4 bytes length] [1 byte type] [payload]
//
// where length = 1 + len(payload) and covers the type byte. Valid
// lengths are 1 through MaxFrameLength inclusive; a declared length of
// zero or above the maximum is a fatal protocol violation and the
// connection carrying it must be closed.
//
// Three frame types exist: control (JSON request/response objects),
// pane output (raw terminal bytes, host to client), and pane input
// (raw terminal bytes, client to host). The codec itself knows nothing
// about frame semantics — routing is the session dispatcher's job.
package proto
