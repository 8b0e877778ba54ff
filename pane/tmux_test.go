// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"bytes"
	"os/exec"
	"testing"
	"time"

	"github.com/lucidity-foundation/lucidity/lib/tmux"
)

// requireTmux skips when the tmux binary is unavailable.
func requireTmux(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("tmux not installed")
	}
}

// collectOutput drains subscription chunks until the predicate matches
// or the deadline passes.
func collectOutput(t *testing.T, subscription *Subscription, deadline time.Duration, match func([]byte) bool) []byte {
	t.Helper()
	var collected []byte
	timeout := time.After(deadline)
	for {
		select {
		case chunk, ok := <-subscription.C():
			if !ok {
				return collected
			}
			collected = append(collected, chunk...)
			if match(collected) {
				return collected
			}
		case <-timeout:
			t.Fatalf("timed out waiting for output; collected %q", collected)
		}
	}
}

// TestTmuxBridge_ListAndEcho runs the full loop against a real tmux
// server: list panes, subscribe, inject input, observe the echo.
func TestTmuxBridge_ListAndEcho(t *testing.T) {
	requireTmux(t)
	server := tmux.NewTestServer(t)
	if err := server.NewSession("work", "sh"); err != nil {
		t.Fatalf("new session: %v", err)
	}

	bridge, err := NewTmuxBridge(server, TmuxBridgeConfig{})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	defer bridge.Close()

	panes, err := bridge.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(panes) < 2 {
		t.Fatalf("got %d panes, want at least 2 (guard + work)", len(panes))
	}
	workPane := panes[len(panes)-1].PaneID

	subscription, err := bridge.Subscribe(workPane)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer subscription.Close()

	if err := bridge.Write(workPane, []byte("echo lucidity-$((40+2))\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	collectOutput(t, subscription, 10*time.Second, func(output []byte) bool {
		return bytes.Contains(output, []byte("lucidity-42"))
	})
}

// TestTmuxBridge_UnknownPane maps tmux's missing-target error.
func TestTmuxBridge_UnknownPane(t *testing.T) {
	requireTmux(t)
	server := tmux.NewTestServer(t)

	bridge, err := NewTmuxBridge(server, TmuxBridgeConfig{})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	defer bridge.Close()

	if err := bridge.Write(9999, []byte("x")); err != ErrPaneNotFound {
		t.Errorf("write to missing pane = %v, want ErrPaneNotFound", err)
	}
}
