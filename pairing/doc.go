// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package pairing implements device trust for the Lucidity host: the
// host's Ed25519 identity keypair, the time-stamped pairing payload a
// new device scans, the human-approved pairing protocol that admits a
// device's public key, and the durable trust store those keys live in.
//
// Trust flows one way. A device proves it scanned the current payload
// by signing the host's public key concatenated with the payload
// timestamp; a human approves the request within a deadline; only then
// does the device's key enter the trust store. Session authentication
// (package host) later consults the store on every remote connection.
package pairing
