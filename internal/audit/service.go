package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records who changed which call and how.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) LogCreated(ctx context.Context, callID, ownerID string, scheduledAt time.Time) error {
	return s.Append(ctx, Event{
		CallID:  callID,
		Type:    EventTypeCreated,
		OwnerID: ownerID,
		Actor:   ownerID,
		Message: "scheduled for " + scheduledAt.UTC().Format(time.RFC3339),
	})
}

func (s *Service) LogRescheduled(ctx context.Context, callID, ownerID, actor string, from, to time.Time) error {
	return s.Append(ctx, Event{
		CallID:  callID,
		Type:    EventTypeRescheduled,
		OwnerID: ownerID,
		Actor:   actor,
		Message: "moved from " + from.UTC().Format(time.RFC3339) + " to " + to.UTC().Format(time.RFC3339),
	})
}

func (s *Service) LogDeleted(ctx context.Context, callID, ownerID, actor string) error {
	return s.Append(ctx, Event{
		CallID:  callID,
		Type:    EventTypeDeleted,
		OwnerID: ownerID,
		Actor:   actor,
		Message: "call deleted",
	})
}

// LogReply records an inbound reminder reply verbatim.
func (s *Service) LogReply(ctx context.Context, callID, ownerID, from, body string) error {
	return s.Append(ctx, Event{
		CallID:  callID,
		Type:    EventTypeReply,
		OwnerID: ownerID,
		Actor:   from,
		Message: body,
	})
}
