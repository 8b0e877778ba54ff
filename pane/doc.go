// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package pane defines the bridge capability between the Lucidity host
// and the terminal subsystem, and the fan-out machinery that copies one
// pane's PTY output to many subscribers without back-pressuring the
// terminal.
//
// The package is organized around the output data flow:
//
//   - bridge.go: the Bridge capability interface and pane metadata
//   - fanout.go: per-pane broadcaster with bounded subscriber queues
//   - ring.go: scrollback ring buffer replayed to new subscribers
//   - tmux.go: production Bridge over a dedicated tmux server
//   - fake.go: scripted Bridge for tests
//
// A slow or stalled remote must never slow the local terminal: queues
// are bounded, and on overflow the broadcaster either drops the oldest
// chunk for that subscriber or disconnects the subscriber, depending on
// the configured policy.
package pane
