// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"sync"
)

// RecordedWrite is one Write or Paste call observed by a FakeBridge.
type RecordedWrite struct {
	PaneID int
	Data   []byte
}

// RecordedResize is one Resize call observed by a FakeBridge.
type RecordedResize struct {
	PaneID int
	Rows   int
	Cols   int
}

// FakeBridge is a scripted Bridge for tests. It records every write,
// paste, and resize, and emits output on demand through real Fanout
// instances, so tests exercise the same delivery path as production.
type FakeBridge struct {
	policy   OverflowPolicy
	capacity int

	mu      sync.Mutex
	panes   []Info
	fanouts map[int]*Fanout
	writes  []RecordedWrite
	pastes  []RecordedWrite
	resizes []RecordedResize
}

// NewFakeBridge creates a fake with the given pane snapshot and default
// queue settings.
func NewFakeBridge(panes ...Info) *FakeBridge {
	return &FakeBridge{
		capacity: DefaultQueueCapacity,
		panes:    panes,
		fanouts:  make(map[int]*Fanout),
	}
}

// SetQueue overrides the subscriber queue capacity and overflow policy
// for subsequently created subscriptions.
func (b *FakeBridge) SetQueue(capacity int, policy OverflowPolicy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = capacity
	b.policy = policy
}

// List returns the scripted pane snapshot.
func (b *FakeBridge) List() ([]Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Info, len(b.panes))
	copy(out, b.panes)
	return out, nil
}

// Subscribe attaches to the pane's fanout, creating it on first use.
func (b *FakeBridge) Subscribe(paneID int) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasPaneLocked(paneID) {
		return nil, ErrPaneNotFound
	}
	fanout, ok := b.fanouts[paneID]
	if !ok {
		fanout = NewFanout(b.capacity, b.policy, nil)
		b.fanouts[paneID] = fanout
	}
	return fanout.Subscribe()
}

// Write records the input bytes.
func (b *FakeBridge) Write(paneID int, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasPaneLocked(paneID) {
		return ErrPaneNotFound
	}
	recorded := make([]byte, len(data))
	copy(recorded, data)
	b.writes = append(b.writes, RecordedWrite{PaneID: paneID, Data: recorded})
	return nil
}

// Resize records the new dimensions.
func (b *FakeBridge) Resize(paneID, rows, cols int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasPaneLocked(paneID) {
		return ErrPaneNotFound
	}
	b.resizes = append(b.resizes, RecordedResize{PaneID: paneID, Rows: rows, Cols: cols})
	return nil
}

// Paste records the pasted text.
func (b *FakeBridge) Paste(paneID int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasPaneLocked(paneID) {
		return ErrPaneNotFound
	}
	b.pastes = append(b.pastes, RecordedWrite{PaneID: paneID, Data: []byte(text)})
	return nil
}

// EmitOutput publishes scripted output bytes to the pane's subscribers.
// A pane with no subscription yet silently drops the output, matching a
// PTY producing before anyone attached.
func (b *FakeBridge) EmitOutput(paneID int, data []byte) {
	b.mu.Lock()
	fanout := b.fanouts[paneID]
	b.mu.Unlock()
	if fanout != nil {
		fanout.Publish(data)
	}
}

// ClosePane removes the pane from the snapshot and terminates its
// subscribers, as if the underlying PTY exited.
func (b *FakeBridge) ClosePane(paneID int) {
	b.mu.Lock()
	for i, info := range b.panes {
		if info.PaneID == paneID {
			b.panes = append(b.panes[:i], b.panes[i+1:]...)
			break
		}
	}
	fanout := b.fanouts[paneID]
	delete(b.fanouts, paneID)
	b.mu.Unlock()
	if fanout != nil {
		fanout.Close()
	}
}

// Writes returns the recorded Write calls.
func (b *FakeBridge) Writes() []RecordedWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedWrite, len(b.writes))
	copy(out, b.writes)
	return out
}

// Pastes returns the recorded Paste calls.
func (b *FakeBridge) Pastes() []RecordedWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedWrite, len(b.pastes))
	copy(out, b.pastes)
	return out
}

// Resizes returns the recorded Resize calls.
func (b *FakeBridge) Resizes() []RecordedResize {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedResize, len(b.resizes))
	copy(out, b.resizes)
	return out
}

func (b *FakeBridge) hasPaneLocked(paneID int) bool {
	for _, info := range b.panes {
		if info.PaneID == paneID {
			return true
		}
	}
	return false
}
