// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests.
//
// The package provides a Clock interface with two implementations:
// Real() delegates to the time package, Fake() gives tests full control
// over the current time and pending timers. Code that takes deadlines
// seriously — the pairing freshness window, the approval timeout, the
// auth grace period — accepts a Clock instead of calling time directly,
// so tests advance time instead of sleeping.
package clock
