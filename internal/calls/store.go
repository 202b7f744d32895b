package calls

import "context"

// Store is the persistence contract for scheduled calls.
//
// Update is the only mutation path for existing records. The mutation runs
// against the current row while it is held exclusively, so concurrent
// dispatch and status-callback updates for the same id never interleave.
type Store interface {
	Create(ctx context.Context, c ScheduledCall) error
	FindByID(ctx context.Context, id string) (ScheduledCall, error)
	FindByProviderHandle(ctx context.Context, handle string) (ScheduledCall, error)
	// FindPendingByRecipient returns the pending call with the earliest
	// ScheduledAt for the given number.
	FindPendingByRecipient(ctx context.Context, number string) (ScheduledCall, error)
	ListByStatus(ctx context.Context, status Status) ([]ScheduledCall, error)
	ListByOwner(ctx context.Context, ownerID string) ([]ScheduledCall, error)
	// Update applies mutate to the stored record and persists the result.
	// If mutate returns ErrUnchanged nothing is written and the current
	// record is returned with a nil error.
	Update(ctx context.Context, id string, mutate func(*ScheduledCall) error) (ScheduledCall, error)
	Delete(ctx context.Context, id string) error
}
