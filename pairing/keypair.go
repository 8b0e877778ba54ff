// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// b64u is the serialization alphabet for keys and signatures: URL-safe
// base64 without padding, on the wire and at rest.
var b64u = base64.RawURLEncoding

// PublicKey is a 32-byte Ed25519 public key.
type PublicKey [ed25519.PublicKeySize]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// ParsePublicKey decodes a b64u public key.
func ParsePublicKey(encoded string) (PublicKey, error) {
	var key PublicKey
	decoded, err := b64u.DecodeString(encoded)
	if err != nil {
		return key, fmt.Errorf("decoding public key: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return key, fmt.Errorf("public key has %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
	}
	copy(key[:], decoded)
	return key, nil
}

// ParseSignature decodes a b64u signature.
func ParseSignature(encoded string) (Signature, error) {
	var signature Signature
	decoded, err := b64u.DecodeString(encoded)
	if err != nil {
		return signature, fmt.Errorf("decoding signature: %w", err)
	}
	if len(decoded) != ed25519.SignatureSize {
		return signature, fmt.Errorf("signature has %d bytes, want %d", len(decoded), ed25519.SignatureSize)
	}
	copy(signature[:], decoded)
	return signature, nil
}

// String returns the b64u form.
func (k PublicKey) String() string {
	return b64u.EncodeToString(k[:])
}

// Verify reports whether signature is a valid Ed25519 signature of
// message under this key.
func (k PublicKey) Verify(message []byte, signature Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(k[:]), message, signature[:])
}

// MarshalJSON encodes the key as a b64u string.
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a b64u string.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(encoded)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// String returns the b64u form.
func (s Signature) String() string {
	return b64u.EncodeToString(s[:])
}

// MarshalJSON encodes the signature as a b64u string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a b64u string.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	parsed, err := ParseSignature(encoded)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Keypair is an Ed25519 signing identity. The host has one, persisted
// across restarts; each device has its own, held on the device.
type Keypair struct {
	private ed25519.PrivateKey
}

// Generate creates a new keypair from the given randomness source.
// Pass nil to use crypto/rand.
func Generate(random io.Reader) (*Keypair, error) {
	_, private, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return &Keypair{private: private}, nil
}

// FromSeed reconstructs a keypair from its 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the public half.
func (k *Keypair) PublicKey() PublicKey {
	var key PublicKey
	copy(key[:], k.private.Public().(ed25519.PublicKey))
	return key
}

// Seed returns the 32-byte seed that regenerates this keypair.
func (k *Keypair) Seed() []byte {
	return k.private.Seed()
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) Signature {
	var signature Signature
	copy(signature[:], ed25519.Sign(k.private, message))
	return signature
}
