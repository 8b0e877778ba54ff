// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a fixed-size pool of SQLite connections
// with Lucidity-standard pragmas (WAL journaling, NORMAL synchronous,
// busy timeout). The trust store is the only database in the system and
// is small, so the defaults favor simplicity over throughput.
package sqlitepool
