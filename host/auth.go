// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// NonceSize is the length of authentication nonces in bytes. Both
// sides must present at least this much fresh randomness per
// handshake; a shorter nonce is rejected outright.
const NonceSize = 16

// b64u encodes nonces and signatures for transport inside control
// frames.
var b64u = base64.RawURLEncoding

// newNonce draws NonceSize bytes from the given randomness source
// (crypto/rand when nil).
func newNonce(random io.Reader) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, fmt.Errorf("generating auth nonce: %w", err)
	}
	return nonce, nil
}

// decodeNonce parses a peer-supplied b64u nonce and enforces the
// minimum length.
func decodeNonce(encoded string) ([]byte, error) {
	nonce, err := b64u.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce: %w", err)
	}
	if len(nonce) < NonceSize {
		return nil, fmt.Errorf("nonce has %d bytes, want at least %d", len(nonce), NonceSize)
	}
	return nonce, nil
}
