package scheduler

import (
	"sync"
	"time"
)

// Purpose distinguishes the independent timers a call may hold.
type Purpose string

const (
	PurposeReminder Purpose = "reminder"
	PurposeDispatch Purpose = "dispatch"
)

// Timer is the handle of an armed one-shot wake-up. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d in its own goroutine.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type timerKey struct {
	id      string
	purpose Purpose
}

type armedTimer struct {
	timer Timer
	seq   uint64
}

// Registry maps call id to its armed timers, at most one per purpose.
//
// All mutations hold mu. Fired callbacks run outside the lock and remove
// their own entry when they return, unless it was replaced in the meantime.
type Registry struct {
	mu        sync.Mutex
	timers    map[timerKey]armedTimer
	seq       uint64
	afterFunc AfterFunc
}

// NewRegistry returns an empty registry. A nil afterFunc uses time.AfterFunc.
func NewRegistry(afterFunc AfterFunc) *Registry {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Registry{timers: map[timerKey]armedTimer{}, afterFunc: afterFunc}
}

// Arm replaces any timer for (id, purpose) with one that runs fn after d.
func (r *Registry) Arm(id string, purpose Purpose, d time.Duration, fn func()) {
	k := timerKey{id: id, purpose: purpose}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.timers[k]; ok {
		prev.timer.Stop()
	}
	r.seq++
	seq := r.seq
	t := r.afterFunc(d, func() {
		defer r.release(k, seq)
		fn()
	})
	r.timers[k] = armedTimer{timer: t, seq: seq}
}

func (r *Registry) release(k timerKey, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.timers[k]; ok && cur.seq == seq {
		delete(r.timers, k)
	}
}

// Stop cancels the timer for (id, purpose), reporting whether one existed.
func (r *Registry) Stop(id string, purpose Purpose) bool {
	k := timerKey{id: id, purpose: purpose}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.timers[k]
	if !ok {
		return false
	}
	cur.timer.Stop()
	delete(r.timers, k)
	return true
}

// Cancel stops every timer registered for id. It is a no-op for unknown ids.
func (r *Registry) Cancel(id string) bool {
	reminder := r.Stop(id, PurposeReminder)
	dispatch := r.Stop(id, PurposeDispatch)
	return reminder || dispatch
}

// Armed reports whether a timer for (id, purpose) is registered.
func (r *Registry) Armed(id string, purpose Purpose) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[timerKey{id: id, purpose: purpose}]
	return ok
}

// Len returns the number of registered timers across all ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// StopAll stops and forgets every registered timer.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, cur := range r.timers {
		cur.timer.Stop()
		delete(r.timers, k)
	}
}
