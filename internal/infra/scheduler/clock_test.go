//go:build !integration

package scheduler

import (
	"sync"
	"testing"
	"time"
)

// manualClock only moves when Advance is called.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters map[*manualTimer]struct{}
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	ch    chan time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now, waiters: make(map[*manualTimer]struct{})}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTimer(d time.Duration) ClockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- c.now
		return t
	}
	c.waiters[t] = struct{}{}
	return t
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	_, ok := t.clock.waiters[t]
	delete(t.clock.waiters, t)
	return ok
}

// Advance moves the clock forward and fires every timer that became due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for t := range c.waiters {
		if !t.at.After(c.now) {
			t.ch <- c.now
			delete(c.waiters, t)
		}
	}
}

// AdvanceTo moves the clock to at.
func (c *manualClock) AdvanceTo(at time.Time) {
	c.Advance(at.Sub(c.Now()))
}

func (c *manualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Deadlines returns when each sleeping timer is due.
func (c *manualClock) Deadlines() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, 0, len(c.waiters))
	for t := range c.waiters {
		out = append(out, t.at)
	}
	return out
}

// BlockUntil waits until exactly n goroutines are sleeping on the clock.
func (c *manualClock) BlockUntil(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Waiters() == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d sleeping timers, have %d", n, c.Waiters())
}
