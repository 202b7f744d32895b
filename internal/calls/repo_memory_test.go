package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newCall(id, number string, at time.Time) ScheduledCall {
	return ScheduledCall{
		ID:                 id,
		ScheduledBy:        "owner-1",
		ScheduledTo:        "member-1",
		RecipientNumber:    number,
		RecipientName:      "Asha",
		ScheduledAt:        at,
		ScheduledAtHistory: []time.Time{at},
		Status:             StatusPending,
		TriesLeft:          MaxTries,
	}
}

func TestMemoryStore_CreateRejectsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := newCall("c1", "+15550001", time.Unix(1700000000, 0).UTC())

	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, c); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()
	if err := s.Create(ctx, newCall("c1", "+15550001", at)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := s.FindByID(ctx, "c1")
	got.ScheduledAtHistory[0] = at.Add(time.Hour)
	got.Status = StatusFailed

	again, _ := s.FindByID(ctx, "c1")
	if !again.ScheduledAtHistory[0].Equal(at) || again.Status != StatusPending {
		t.Fatalf("stored record was mutated through a returned copy: %+v", again)
	}
}

func TestMemoryStore_UpdateBumpsVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, newCall("c1", "+15550001", time.Unix(1700000000, 0).UTC()))

	out, err := s.Update(ctx, "c1", func(c *ScheduledCall) error {
		c.Status = StatusInProgress
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Version != 2 || out.Status != StatusInProgress {
		t.Fatalf("unexpected record: %+v", out)
	}

	same, err := s.Update(ctx, "c1", func(c *ScheduledCall) error {
		c.Status = StatusFailed
		return ErrUnchanged
	})
	if err != nil {
		t.Fatalf("unchanged update: %v", err)
	}
	if same.Version != 2 || same.Status != StatusInProgress {
		t.Fatalf("ErrUnchanged must not write: %+v", same)
	}

	if _, err := s.Update(ctx, "missing", func(*ScheduledCall) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_FindPendingByRecipientPicksEarliest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	_ = s.Create(ctx, newCall("late", "+15550001", base.Add(2*time.Hour)))
	_ = s.Create(ctx, newCall("early", "+15550001", base.Add(time.Hour)))
	done := newCall("done", "+15550001", base)
	done.Status = StatusCompleted
	_ = s.Create(ctx, done)
	_ = s.Create(ctx, newCall("other", "+15550002", base))

	got, err := s.FindPendingByRecipient(ctx, "+15550001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "early" {
		t.Fatalf("expected earliest pending call, got %s", got.ID)
	}

	if _, err := s.FindPendingByRecipient(ctx, "+15559999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_FindByProviderHandleAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := newCall("c1", "+15550001", time.Unix(1700000000, 0).UTC())
	c.ProviderCallHandle = "CA123"
	_ = s.Create(ctx, c)

	if _, err := s.FindByProviderHandle(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty handle must not match")
	}
	got, err := s.FindByProviderHandle(ctx, "CA123")
	if err != nil || got.ID != "c1" {
		t.Fatalf("expected c1, got %v %v", got.ID, err)
	}
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusInProgress.Terminal() {
		t.Fatalf("pending/in-progress are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("completed/failed are terminal")
	}
}
