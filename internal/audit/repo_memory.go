package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepo keeps audit events in process, for tests and local runs.
// Like the audit_events table it rejects a second event with the same id.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	ids    map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{ids: map[string]struct{}{}} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[e.ID]; dup {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidEvent, e.ID)
	}
	r.ids[e.ID] = struct{}{}
	r.events = append(r.events, e)
	return nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// ForCall returns the trail of one call in append order.
func (r *MemoryRepo) ForCall(callID string) []Event {
	return r.filter(func(e Event) bool { return e.CallID == callID })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
