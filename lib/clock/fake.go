// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when a test advances it.
// Timers and After channels fire synchronously inside Advance, before
// Advance returns.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
	nextID  int
}

// fakeWaiter is one pending After channel or AfterFunc call.
type fakeWaiter struct {
	id       int
	deadline time.Time
	ch       chan time.Time
	fn       func()
	stopped  bool
}

// Fake returns a FakeClock starting at a fixed, arbitrary instant.
func Fake() *FakeClock {
	return &FakeClock{
		now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FakeAt returns a FakeClock starting at the given instant.
func FakeAt(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that fires when the fake time passes d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.addWaiterLocked(&fakeWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// AfterFunc schedules f to run when the fake time passes d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	if d <= 0 {
		c.mu.Unlock()
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}
	waiter := &fakeWaiter{deadline: c.now.Add(d), fn: f}
	c.addWaiterLocked(waiter)
	c.mu.Unlock()
	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if waiter.stopped {
			return false
		}
		waiter.stopped = true
		return true
	}}
}

// Sleep blocks until the fake time has advanced past d.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the fake time forward, firing every timer whose
// deadline is reached, in deadline order. AfterFunc callbacks run on
// the calling goroutine before Advance returns.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		var next *fakeWaiter
		for _, waiter := range c.waiters {
			if waiter.stopped || waiter.deadline.After(target) {
				continue
			}
			if next == nil || waiter.deadline.Before(next.deadline) ||
				(waiter.deadline.Equal(next.deadline) && waiter.id < next.id) {
				next = waiter
			}
		}
		if next == nil {
			break
		}
		next.stopped = true
		c.now = next.deadline
		if next.ch != nil {
			next.ch <- c.now
		}
		if next.fn != nil {
			fn := next.fn
			c.mu.Unlock()
			fn()
			c.mu.Lock()
		}
	}

	c.now = target
	c.compactLocked()
	c.mu.Unlock()
}

// PendingTimers returns the number of unfired timers, for test
// assertions about cleanup.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			count++
		}
	}
	return count
}

func (c *FakeClock) addWaiterLocked(waiter *fakeWaiter) {
	waiter.id = c.nextID
	c.nextID++
	c.waiters = append(c.waiters, waiter)
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
}

func (c *FakeClock) compactLocked() {
	live := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			live = append(live, waiter)
		}
	}
	c.waiters = live
}
