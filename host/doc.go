// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package host implements the desktop host bridge: a framed TCP
// service that lets a paired remote device enumerate panes, attach to
// one, stream its output, and inject input — with the same bytes the
// local display sees.
//
// The package splits along the connection lifecycle:
//
//   - server.go: accept loop, admission control, session registry
//   - auth.go: per-connection mutual challenge-response
//   - session.go: per-connection state machine and I/O pumps
//
// Every remote connection authenticates against the pairing trust
// store before any pane operation. Loopback connections may skip
// authentication (configurable); exempt sessions still cannot touch
// the trust store.
package host
