// Package timeutil provides a testable abstraction over wall-clock time.
package timeutil

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source for event timestamps and debounce timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f on its own goroutine (RealClock) or from Advance
	// (MockClock) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop cancels the call. It reports whether the call was still pending.
	Stop() bool

	// Reset reschedules the call d from now. It reports whether the call
	// was still pending.
	Reset(d time.Duration) bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MockClock is a manually controlled clock for testing. Timers fire
// synchronously from Advance and Set, in deadline order.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*MockTimer
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t and fires any timers now due.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
	c.fire()
}

// Advance moves the clock forward by d and fires any timers now due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	c.fire()
}

// AfterFunc schedules f for d after the mocked current time.
func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTimer{clock: c, f: f, deadline: c.now.Add(d), pending: true, listed: true}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.pending {
			n++
		}
	}
	return n
}

func (c *MockClock) fire() {
	c.mu.Lock()
	var due []*MockTimer
	kept := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case !t.pending:
			t.listed = false
		case !t.deadline.After(c.now):
			t.pending = false
			t.listed = false
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	c.timers = kept
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.f()
	}
}

// MockTimer is a MockClock AfterFunc registration.
type MockTimer struct {
	clock    *MockClock
	f        func()
	deadline time.Time
	pending  bool
	listed   bool
}

// Stop cancels the timer.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.pending
	t.pending = false
	return was
}

// Reset reschedules the timer d after the mocked current time.
func (t *MockTimer) Reset(d time.Duration) bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	was := t.pending
	t.deadline = c.now.Add(d)
	if !t.listed {
		c.timers = append(c.timers, t)
		t.listed = true
	}
	t.pending = true
	return was
}
