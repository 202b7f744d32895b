package audit

import "time"

// Event is an immutable, append-only audit record of a state change made
// on behalf of a person: an owner through the API or a recipient replying
// to a reminder.
//
// Events are never updated or deleted. Writing them is best-effort and
// must not block the change they describe.
type Event struct {
	ID     string    `json:"id" db:"id"`
	CallID string    `json:"call_id" db:"call_id"`
	Type   EventType `json:"type" db:"type"`

	// OwnerID is the call owner; Actor is who caused the event (an owner id
	// or the replying phone number).
	OwnerID string `json:"owner_id,omitempty" db:"owner_id"`
	Actor   string `json:"actor,omitempty" db:"actor"`

	Message string `json:"message,omitempty" db:"message"`
	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCreated     EventType = "call_created"
	EventTypeRescheduled EventType = "call_rescheduled"
	EventTypeDeleted     EventType = "call_deleted"
	EventTypeReply       EventType = "reminder_reply"
)
