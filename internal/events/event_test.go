package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"care-call-scheduler/internal/calls"
)

func TestFromCall(t *testing.T) {
	at := time.Date(2025, 8, 20, 13, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	now := time.Date(2025, 8, 20, 7, 0, 0, 0, time.UTC)
	c := calls.ScheduledCall{ID: "c1", ScheduledBy: "u1", Status: calls.StatusPending, TriesLeft: 3, ScheduledAt: at}

	e := FromCall(TypeScheduled, c, now)
	if e.ID == "" {
		t.Fatalf("expected event id")
	}
	if e.CallID != "c1" || e.OwnerID != "u1" || e.TriesLeft != 3 || e.Status != calls.StatusPending {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.ScheduledAt.Location() != time.UTC || !e.ScheduledAt.Equal(at) {
		t.Fatalf("expected scheduled_at normalized to UTC, got %v", e.ScheduledAt)
	}
}

func TestEncode(t *testing.T) {
	e := Event{ID: "e1", Type: TypeFailed, CallID: "c1", Status: calls.StatusFailed}
	b, err := Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["type"] != "call.failed" || m["status"] != "failed" {
		t.Fatalf("unexpected payload: %s", b)
	}
}

func TestMemoryPublisher_KeepsOrder(t *testing.T) {
	var p MemoryPublisher
	_ = p.Publish(context.Background(), Event{Type: TypeScheduled})
	_ = p.Publish(context.Background(), Event{Type: TypeDispatched})

	got := p.Types()
	if len(got) != 2 || got[0] != TypeScheduled || got[1] != TypeDispatched {
		t.Fatalf("unexpected types: %v", got)
	}
}

func TestDial_RequiresURL(t *testing.T) {
	if _, err := Dial("", nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNewAMQPPublisher_Validates(t *testing.T) {
	if _, err := NewAMQPPublisher(nil, "q"); err == nil {
		t.Fatalf("expected error for nil connection")
	}
	if _, err := NewAMQPPublisher(&Connection{}, ""); err == nil {
		t.Fatalf("expected error for empty queue")
	}
}
