// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"bytes"
	"errors"
	"testing"
)

// TestFakeBridge_RecordsAndEmits is the double's contract: it records
// writes and emits scripted output through the real fanout path.
func TestFakeBridge_RecordsAndEmits(t *testing.T) {
	bridge := NewFakeBridge(Info{PaneID: 1, Title: "bash"})

	panes, err := bridge.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(panes) != 1 || panes[0].Title != "bash" {
		t.Fatalf("panes = %+v", panes)
	}

	subscription, err := bridge.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bridge.EmitOutput(1, []byte("hello"))
	if chunk := <-subscription.C(); !bytes.Equal(chunk, []byte("hello")) {
		t.Errorf("chunk = %q, want hello", chunk)
	}

	if err := bridge.Write(1, []byte("ls\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writes := bridge.Writes()
	if len(writes) != 1 || writes[0].PaneID != 1 || !bytes.Equal(writes[0].Data, []byte("ls\n")) {
		t.Errorf("writes = %+v", writes)
	}

	if err := bridge.Resize(1, 50, 120); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if resizes := bridge.Resizes(); len(resizes) != 1 || resizes[0].Cols != 120 {
		t.Errorf("resizes = %+v", resizes)
	}
}

// TestFakeBridge_UnknownPane returns ErrPaneNotFound everywhere.
func TestFakeBridge_UnknownPane(t *testing.T) {
	bridge := NewFakeBridge(Info{PaneID: 1, Title: "bash"})

	if _, err := bridge.Subscribe(9); !errors.Is(err, ErrPaneNotFound) {
		t.Errorf("subscribe error = %v", err)
	}
	if err := bridge.Write(9, []byte("x")); !errors.Is(err, ErrPaneNotFound) {
		t.Errorf("write error = %v", err)
	}
	if err := bridge.Paste(9, "x"); !errors.Is(err, ErrPaneNotFound) {
		t.Errorf("paste error = %v", err)
	}
}

// TestFakeBridge_ClosePane terminates subscribers and removes the pane
// from the snapshot.
func TestFakeBridge_ClosePane(t *testing.T) {
	bridge := NewFakeBridge(Info{PaneID: 1, Title: "bash"})
	subscription, err := bridge.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bridge.ClosePane(1)

	if _, ok := <-subscription.C(); ok {
		t.Errorf("subscriber channel still open after ClosePane")
	}
	panes, _ := bridge.List()
	if len(panes) != 0 {
		t.Errorf("panes = %+v, want empty", panes)
	}
}
