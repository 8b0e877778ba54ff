// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret handles sensitive byte strings — the relay secret —
// in memory that is locked into RAM, excluded from core dumps, and
// zeroed on release. Secrets read through this package never appear in
// logs or long-lived config structs.
package secret
