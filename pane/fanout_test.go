// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package pane

import (
	"bytes"
	"fmt"
	"testing"
)

// drain receives every currently queued chunk without blocking.
func drain(subscription *Subscription) [][]byte {
	var chunks [][]byte
	for {
		select {
		case chunk, ok := <-subscription.C():
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		default:
			return chunks
		}
	}
}

// TestFanout_DeliveryOrder verifies per-subscriber delivery matches
// publish order.
func TestFanout_DeliveryOrder(t *testing.T) {
	fanout := NewFanout(16, DropOldest, nil)
	subscription, err := fanout.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := range 10 {
		fanout.Publish(fmt.Appendf(nil, "chunk-%d", i))
	}

	chunks := drain(subscription)
	if len(chunks) != 10 {
		t.Fatalf("received %d chunks, want 10", len(chunks))
	}
	for i, chunk := range chunks {
		want := fmt.Sprintf("chunk-%d", i)
		if string(chunk) != want {
			t.Errorf("chunk %d = %q, want %q", i, chunk, want)
		}
	}
}

// TestFanout_DropOldestOverflow: a capacity-4 queue fed 10 chunks
// keeps the last 4, in order, without ever blocking the producer.
func TestFanout_DropOldestOverflow(t *testing.T) {
	fanout := NewFanout(4, DropOldest, nil)
	slow, err := fanout.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	fast, err := fanout.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var fastGot [][]byte
	for i := range 10 {
		fanout.Publish(fmt.Appendf(nil, "chunk-%d", i))
		// The fast subscriber drains every publish and must see all 10.
		fastGot = append(fastGot, drain(fast)...)
	}

	slowGot := drain(slow)
	if len(slowGot) != 4 {
		t.Fatalf("slow subscriber received %d chunks, want 4", len(slowGot))
	}
	for i, chunk := range slowGot {
		want := fmt.Sprintf("chunk-%d", i+6)
		if string(chunk) != want {
			t.Errorf("slow chunk %d = %q, want %q", i, chunk, want)
		}
	}
	if slow.Dropped() != 6 {
		t.Errorf("dropped count = %d, want 6", slow.Dropped())
	}

	if len(fastGot) != 10 {
		t.Errorf("fast subscriber received %d chunks, want 10 (unaffected by slow peer)", len(fastGot))
	}
}

// TestFanout_DisconnectOverflow verifies the alternative policy closes
// the slow subscriber instead of dropping.
func TestFanout_DisconnectOverflow(t *testing.T) {
	fanout := NewFanout(2, Disconnect, nil)
	subscription, err := fanout.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := range 5 {
		fanout.Publish([]byte{byte(i)})
	}

	// Queue held 2, third publish disconnected. Drain the two then
	// observe closure.
	received := 0
	for range subscription.C() {
		received++
	}
	if received != 2 {
		t.Errorf("received %d chunks before disconnect, want 2", received)
	}
	if fanout.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d, want 0", fanout.SubscriberCount())
	}
}

// TestFanout_CloseReleasesSubscriber verifies Close stops delivery and
// Publish keeps working for others.
func TestFanout_CloseReleasesSubscriber(t *testing.T) {
	fanout := NewFanout(8, DropOldest, nil)
	leaving, _ := fanout.Subscribe()
	staying, _ := fanout.Subscribe()

	fanout.Publish([]byte("one"))
	leaving.Close()
	fanout.Publish([]byte("two"))

	if got := drain(staying); len(got) != 2 {
		t.Errorf("staying subscriber got %d chunks, want 2", len(got))
	}

	// The leaving subscriber's channel is closed; at most the
	// pre-close chunk is visible.
	count := 0
	for range leaving.C() {
		count++
	}
	if count > 1 {
		t.Errorf("closed subscriber received %d chunks, want <= 1", count)
	}

	leaving.Close() // double-close is fine
	if fanout.SubscriberCount() != 1 {
		t.Errorf("subscriber count = %d, want 1", fanout.SubscriberCount())
	}
}

// TestFanout_Replay verifies replay chunks land ahead of live output.
func TestFanout_Replay(t *testing.T) {
	fanout := NewFanout(8, DropOldest, nil)
	subscription, err := fanout.Subscribe([]byte("scrollback"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	fanout.Publish([]byte("live"))

	chunks := drain(subscription)
	if len(chunks) != 2 {
		t.Fatalf("received %d chunks, want 2", len(chunks))
	}
	if !bytes.Equal(chunks[0], []byte("scrollback")) || !bytes.Equal(chunks[1], []byte("live")) {
		t.Errorf("chunks = %q, want scrollback then live", chunks)
	}
}

// TestFanout_CloseTerminatesAll verifies pane closure closes every
// subscriber channel and fails future subscribes.
func TestFanout_CloseTerminatesAll(t *testing.T) {
	fanout := NewFanout(8, DropOldest, nil)
	first, _ := fanout.Subscribe()
	second, _ := fanout.Subscribe()

	fanout.Close()

	for name, subscription := range map[string]*Subscription{"first": first, "second": second} {
		if _, ok := <-subscription.C(); ok {
			t.Errorf("%s subscriber channel still open after Close", name)
		}
	}
	if _, err := fanout.Subscribe(); err == nil {
		t.Errorf("Subscribe after Close succeeded")
	}
}

// TestFanout_PublishCopiesChunk verifies subscribers are isolated from
// producer buffer reuse.
func TestFanout_PublishCopiesChunk(t *testing.T) {
	fanout := NewFanout(8, DropOldest, nil)
	subscription, _ := fanout.Subscribe()

	buffer := []byte("aaaa")
	fanout.Publish(buffer)
	copy(buffer, "bbbb")

	chunk := <-subscription.C()
	if string(chunk) != "aaaa" {
		t.Errorf("chunk = %q, want %q (must not alias producer buffer)", chunk, "aaaa")
	}
}
