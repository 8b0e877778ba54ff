// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

// TestReadFromPath_TrimsWhitespace handles trailing newlines from
// editors.
func TestReadFromPath_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay-secret")
	if err := os.WriteFile(path, []byte("  the-secret\n"), 0600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()

	if buffer.String() != "the-secret" {
		t.Errorf("secret = %q", buffer.String())
	}
}

// TestReadFromPath_Rejections covers missing and empty files.
func TestReadFromPath_Rejections(t *testing.T) {
	if _, err := ReadFromPath(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Errorf("missing file accepted")
	}

	empty := filepath.Join(t.TempDir(), "empty")
	os.WriteFile(empty, []byte("   \n"), 0600)
	if _, err := ReadFromPath(empty); err == nil {
		t.Errorf("empty secret accepted")
	}
}
