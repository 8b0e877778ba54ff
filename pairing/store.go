// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// keypairFile is the on-disk form of the host identity: a small JSON
// document holding the b64u seed. The format is load-bearing — other
// tooling reads it — so it never grows fields without need.
type keypairFile struct {
	Seed string `json:"seed"`
}

// KeypairStore persists the host keypair at a fixed path. The file is
// created with mode 0600; the parent directory is created on demand.
type KeypairStore struct {
	path string
}

// NewKeypairStore returns a store for the given path. Nothing is read
// or written until Load, Save, or LoadOrGenerate.
func NewKeypairStore(path string) *KeypairStore {
	return &KeypairStore{path: path}
}

// Path returns the store's file path.
func (s *KeypairStore) Path() string {
	return s.path
}

// Load reads the keypair. Returns (nil, nil) when the file does not
// exist; any other failure (unreadable, malformed, wrong seed size) is
// an error so a corrupt identity is never silently regenerated.
func (s *KeypairStore) Load() (*Keypair, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading keypair file %s: %w", s.path, err)
	}

	var file keypairFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing keypair file %s: %w", s.path, err)
	}

	seed, err := b64u.DecodeString(file.Seed)
	if err != nil {
		return nil, fmt.Errorf("decoding keypair seed: %w", err)
	}
	keypair, err := FromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("keypair file %s: %w", s.path, err)
	}
	return keypair, nil
}

// Save writes the keypair with mode 0600, creating parent directories
// as needed.
func (s *KeypairStore) Save(keypair *Keypair) error {
	if parent := filepath.Dir(s.path); parent != "." {
		if err := os.MkdirAll(parent, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", parent, err)
		}
	}

	data, err := json.MarshalIndent(keypairFile{Seed: b64u.EncodeToString(keypair.Seed())}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding keypair file: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing keypair file %s: %w", s.path, err)
	}
	return nil
}

// LoadOrGenerate loads the existing keypair or creates and saves a new
// one. Returns the keypair and whether it was newly generated. The host
// calls this once at startup; the identity then never changes for the
// process lifetime.
func (s *KeypairStore) LoadOrGenerate() (*Keypair, bool, error) {
	keypair, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	if keypair != nil {
		return keypair, false, nil
	}

	keypair, err = Generate(nil)
	if err != nil {
		return nil, false, err
	}
	if err := s.Save(keypair); err != nil {
		return nil, false, err
	}
	return keypair, true, nil
}
