package calls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]ScheduledCall
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]ScheduledCall{}, clock: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, c ScheduledCall) error {
	if c.ID == "" {
		return fmt.Errorf("%w: id required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.ID]; ok {
		return fmt.Errorf("%w: call %s already exists", ErrConflict, c.ID)
	}
	if c.Version == 0 {
		c.Version = 1
	}
	s.calls[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (ScheduledCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ScheduledCall{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) FindByProviderHandle(ctx context.Context, handle string) (ScheduledCall, error) {
	if handle == "" {
		return ScheduledCall{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.ProviderCallHandle == handle {
			return c.Clone(), nil
		}
	}
	return ScheduledCall{}, ErrNotFound
}

func (s *MemoryStore) FindPendingByRecipient(ctx context.Context, number string) (ScheduledCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  ScheduledCall
		found bool
	)
	for _, c := range s.calls {
		if c.RecipientNumber != number || c.Status != StatusPending {
			continue
		}
		if !found || c.ScheduledAt.Before(best.ScheduledAt) {
			best, found = c, true
		}
	}
	if !found {
		return ScheduledCall{}, ErrNotFound
	}
	return best.Clone(), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]ScheduledCall, error) {
	return s.list(func(c ScheduledCall) bool { return c.Status == status }), nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]ScheduledCall, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner required", ErrValidation)
	}
	return s.list(func(c ScheduledCall) bool { return c.ScheduledBy == ownerID }), nil
}

func (s *MemoryStore) list(keep func(ScheduledCall) bool) []ScheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledCall, 0)
	for _, c := range s.calls {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*ScheduledCall) error) (ScheduledCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.calls[id]
	if !ok {
		return ScheduledCall{}, ErrNotFound
	}
	next := cur.Clone()
	if err := mutate(&next); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return cur.Clone(), nil
		}
		return ScheduledCall{}, err
	}
	next.ID = cur.ID
	next.Version = cur.Version + 1
	next.UpdatedAt = s.clock().UTC()
	s.calls[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[id]; !ok {
		return ErrNotFound
	}
	delete(s.calls, id)
	return nil
}
