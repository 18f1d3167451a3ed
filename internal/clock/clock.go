// Package clock abstracts time so the save debounce can be driven by tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of the time package the plugin depends on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Since(t time.Time) time.Duration
}

// RealClock uses the time package.
type RealClock struct{}

// NewRealClock creates a new RealClock instance
func NewRealClock() *RealClock {
	return &RealClock{}
}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }

// MockClock only moves when Advance or Set is called.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
	armed   chan struct{}
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	f        func()
	stopped  bool
}

// NewMockClock creates a new MockClock starting at the given time
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
		armed:   make(chan struct{}, 1),
	}
}

// Now returns the mock current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Since returns the time elapsed since t using the mock current time
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives once the clock has been advanced by d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.schedule(d, func() {
		ch <- c.Now()
	})
	return ch
}

// schedule runs f once the clock reaches now+d.
func (c *MockClock) schedule(d time.Duration, f func()) *mockTimer {
	c.mu.Lock()
	t := &mockTimer{clock: c, deadline: c.current.Add(d), f: f}
	c.timers = append(c.timers, t)
	c.mu.Unlock()

	select {
	case c.armed <- struct{}{}:
	default:
	}
	return t
}

// Armed signals whenever a timer is scheduled. Tests wait on it before advancing.
func (c *MockClock) Armed() <-chan struct{} {
	return c.armed
}

// PendingTimers returns how many timers have not fired or been stopped.
func (c *MockClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward and fires due timers in deadline order,
// outside the lock.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	var due, remaining []*mockTimer
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.deadline.After(now):
			t.stopped = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.f()
	}
}

// Set jumps to t, firing timers when moving forward.
func (c *MockClock) Set(t time.Time) {
	now := c.Now()
	if t.After(now) {
		c.Advance(t.Sub(now))
		return
	}
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// stop cancels the timer and reports whether it was still pending.
func (t *mockTimer) stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}
