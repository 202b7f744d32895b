package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeClock drives Registry timers deterministically. Advance runs due
// callbacks synchronously, in due order, on the calling goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

type fakeDispatcher struct {
	mu     sync.Mutex
	n      int
	placed []string
	err    error
	// inFlight runs after the provider accepted the call and before
	// PlaceCall returns.
	inFlight func(callID, handle string)
}

func (d *fakeDispatcher) PlaceCall(ctx context.Context, number, callID string) (string, error) {
	d.mu.Lock()
	if d.err != nil {
		d.mu.Unlock()
		return "", d.err
	}
	d.n++
	d.placed = append(d.placed, callID)
	handle := fmt.Sprintf("CA%d", d.n)
	hook := d.inFlight
	d.inFlight = nil
	d.mu.Unlock()

	if hook != nil {
		hook(callID, handle)
	}
	return handle, nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.placed)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []time.Time
}

func (n *fakeNotifier) SendReminder(ctx context.Context, number, name string, at time.Time) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, at)
	return "SM1", nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeLease struct {
	held map[string]bool
}

func (l *fakeLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}
