// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

// Fingerprint derives the short human-readable form of a public key
// shown in approval prompts: the first 8 and last 6 characters of the
// b64u encoding. Enough to compare against a device screen, short
// enough to actually be compared.
func Fingerprint(key PublicKey) string {
	encoded := key.String()
	return encoded[:8] + "…" + encoded[len(encoded)-6:]
}
