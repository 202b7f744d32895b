package audit

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestService_AppendRequiresCallAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeCreated}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{CallID: "c1"}); err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.Events()) != 0 {
		t.Fatalf("expected nothing appended")
	}
}

func TestService_AppendFillsIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	from := time.Date(2025, 8, 20, 13, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	if err := svc.LogRescheduled(context.Background(), "c1", "owner", "+919800000000", from, to); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || !e.CreatedAt.Equal(now) {
		t.Fatalf("expected id and created_at to be set: %+v", e)
	}
	if e.Type != EventTypeRescheduled || e.Actor != "+919800000000" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if !strings.Contains(e.Message, "2025-08-20T14:00:00Z") {
		t.Fatalf("expected target time in message, got %q", e.Message)
	}
}

func TestService_NoRepository(t *testing.T) {
	svc := NewService(nil)
	if err := svc.LogDeleted(context.Background(), "c1", "o", "o"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMemoryRepo_TrailPerCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	at := time.Date(2025, 8, 20, 13, 0, 0, 0, time.UTC)

	if err := svc.LogCreated(ctx, "c1", "owner", at); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := svc.LogCreated(ctx, "c2", "owner", at); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := svc.LogDeleted(ctx, "c1", "owner", "owner"); err != nil {
		t.Fatalf("deleted: %v", err)
	}

	trail := repo.ForCall("c1")
	if len(trail) != 2 || trail[0].Type != EventTypeCreated || trail[1].Type != EventTypeDeleted {
		t.Fatalf("unexpected trail: %+v", trail)
	}
	if len(repo.Events()) != 3 {
		t.Fatalf("expected 3 events, got %d", len(repo.Events()))
	}

	if err := repo.Append(ctx, trail[0]); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}
