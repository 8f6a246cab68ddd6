// Package clock provides an injectable time source so that timer-driven code
// (the status poller, credential caches) can be tested deterministically.
//
// Production code uses Real(). Tests use Fake(start) and call Advance to fire
// pending timers synchronously.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of the time package shipyard depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. The returned Timer can cancel
	// or re-arm the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a handle to a scheduled call.
type Timer struct {
	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the Timer from firing. It returns false if the timer had
// already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset re-arms the timer to fire after d. It returns true if the timer was
// still pending.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop, resetFunc: t.Reset}
}

// FakeClock is a deterministic Clock. Time only moves when Advance is
// called; due callbacks run synchronously on the caller's goroutine in
// deadline order. A callback must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	fn       func()
	active   bool
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	w := &waiter{deadline: c.now.Add(d), fn: f, active: true}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			was := w.active
			w.active = false
			c.removeLocked(w)
			return was
		},
		resetFunc: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			was := w.active
			w.deadline = c.now.Add(d)
			if !was {
				w.active = true
				c.waiters = append(c.waiters, w)
			}
			return was
		},
	}
}

// Advance moves the clock forward by d and runs every callback whose
// deadline falls inside the window. While a callback runs, Now reports its
// deadline, so a timer re-armed from its own callback can fire again within
// the same Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		w := c.nextDue(target)
		if w == nil {
			break
		}
		w.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// nextDue pops the earliest waiter due at or before target and moves the
// clock to its deadline. It returns nil when nothing is due.
func (c *FakeClock) nextDue(target time.Time) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
		return nil
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	w.active = false
	if w.deadline.After(c.now) {
		c.now = w.deadline
	}
	return w
}

func (c *FakeClock) removeLocked(target *waiter) {
	for i, w := range c.waiters {
		if w == target {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
