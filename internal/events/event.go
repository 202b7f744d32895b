package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"care-call-scheduler/internal/calls"
)

// Type names a call lifecycle transition.
type Type string

const (
	TypeScheduled      Type = "call.scheduled"
	TypeDispatched     Type = "call.dispatched"
	TypeRescheduled    Type = "call.rescheduled"
	TypeRetryScheduled Type = "call.retry_scheduled"
	TypeCompleted      Type = "call.completed"
	TypeFailed         Type = "call.failed"
	TypeDeleted        Type = "call.deleted"
)

// Event is the message emitted to downstream consumers after a transition
// has been persisted.
type Event struct {
	ID          string       `json:"id"`
	Type        Type         `json:"type"`
	CallID      string       `json:"call_id"`
	OwnerID     string       `json:"owner_id"`
	Status      calls.Status `json:"status"`
	TriesLeft   int          `json:"tries_left"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// FromCall builds an event describing c as of now.
func FromCall(t Type, c calls.ScheduledCall, now time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		CallID:      c.ID,
		OwnerID:     c.ScheduledBy,
		Status:      c.Status,
		TriesLeft:   c.TriesLeft,
		ScheduledAt: c.ScheduledAt.UTC(),
		OccurredAt:  now.UTC(),
	}
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, e Event) error { return nil }

// MemoryPublisher keeps published events in order. Useful for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *MemoryPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the type of every published event, in order.
func (p *MemoryPublisher) Types() []Type {
	evs := p.Events()
	out := make([]Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
