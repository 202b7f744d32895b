package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"care-call-scheduler/internal/auth"
	"care-call-scheduler/internal/calls"
	"care-call-scheduler/internal/reporting"
	"care-call-scheduler/internal/scheduler"
	"care-call-scheduler/pkg/logger"
)

var now = time.Date(2025, 8, 20, 6, 0, 0, 0, time.UTC)

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

type stubDispatcher struct{}

func (stubDispatcher) PlaceCall(ctx context.Context, number, callID string) (string, error) {
	return "CA-" + callID, nil
}

type stubNotifier struct{}

func (stubNotifier) SendReminder(ctx context.Context, number, name string, at time.Time) (string, error) {
	return "SM1", nil
}

type harness struct {
	store  *calls.MemoryStore
	router *gin.Engine
}

// newHarness wires the handlers to a real engine whose timers never fire.
// The X-Owner header stands in for bearer authentication.
func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := calls.NewMemoryStore()
	reg := scheduler.NewRegistry(func(time.Duration, func()) scheduler.Timer { return idleTimer{} })
	engine := scheduler.NewEngine(store, stubDispatcher{}, stubNotifier{}, reg, scheduler.Config{Location: time.UTC})
	engine.Now = func() time.Time { return now }
	engine.Log = logger.Discard()

	r := gin.New()
	g := r.Group("/v1", func(c *gin.Context) {
		if id := c.GetHeader("X-Owner"); id != "" {
			c.Request = c.Request.WithContext(auth.WithOwner(c.Request.Context(), id))
		}
		c.Next()
	})
	Handlers{Calls: engine, Store: store, Reports: reporting.NewService(store)}.Register(g)
	return &harness{store: store, router: r}
}

func (h *harness) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) createCall(t *testing.T, owner string, in time.Duration) calls.ScheduledCall {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/calls", owner, gin.H{
		"recipient_number": "+919812345678",
		"recipient_name":   "Asha",
		"scheduled_at":     now.Add(in).Format(time.RFC3339),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var c calls.ScheduledCall
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return c
}

func TestCreateCall(t *testing.T) {
	h := newHarness(t)
	c := h.createCall(t, "owner-1", time.Hour)

	if c.ID == "" || c.Status != calls.StatusPending || c.TriesLeft != 3 {
		t.Fatalf("unexpected call: %+v", c)
	}
	if c.ScheduledBy != "owner-1" || c.ScheduledTo != "owner-1" {
		t.Fatalf("expected owner to default scheduled_to, got %+v", c)
	}
	if len(c.ScheduledAtHistory) != 1 {
		t.Fatalf("expected initial history, got %v", c.ScheduledAtHistory)
	}
}

func TestCreateCall_Errors(t *testing.T) {
	h := newHarness(t)

	if w := h.do(t, http.MethodPost, "/v1/calls", "", gin.H{}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without owner, got %d", w.Code)
	}
	w := h.do(t, http.MethodPost, "/v1/calls", "owner-1", gin.H{
		"recipient_number": "12345",
		"scheduled_at":     now.Add(time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad number, got %d", w.Code)
	}
	w = h.do(t, http.MethodPost, "/v1/calls", "owner-1", gin.H{"scheduled_at": "tomorrow"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad time, got %d", w.Code)
	}
}

func TestGetCall_HidesOtherOwners(t *testing.T) {
	h := newHarness(t)
	c := h.createCall(t, "owner-1", time.Hour)

	if w := h.do(t, http.MethodGet, "/v1/calls/"+c.ID, "owner-1", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := h.do(t, http.MethodGet, "/v1/calls/"+c.ID, "owner-2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another owner, got %d", w.Code)
	}
	if w := h.do(t, http.MethodGet, "/v1/calls/missing", "owner-1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing call, got %d", w.Code)
	}
}

func TestListCalls(t *testing.T) {
	h := newHarness(t)
	h.createCall(t, "owner-1", time.Hour)
	h.createCall(t, "owner-1", 2*time.Hour)
	h.createCall(t, "owner-2", time.Hour)

	w := h.do(t, http.MethodGet, "/v1/calls?status=pending", "owner-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Calls []calls.ScheduledCall `json:"calls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(body.Calls))
	}

	w = h.do(t, http.MethodGet, "/v1/calls?status=completed", "owner-1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Calls) != 0 {
		t.Fatalf("expected no completed calls, got %d", len(body.Calls))
	}
}

func TestRescheduleCall(t *testing.T) {
	h := newHarness(t)
	c := h.createCall(t, "owner-1", time.Hour)
	at := now.Add(3 * time.Hour)

	w := h.do(t, http.MethodPatch, "/v1/calls/"+c.ID, "owner-1", gin.H{"scheduled_at": at.Format(time.RFC3339)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got, err := h.store.FindByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.ScheduledAt.Equal(at) || len(got.ScheduledAtHistory) != 2 {
		t.Fatalf("unexpected call after reschedule: %+v", got)
	}

	w = h.do(t, http.MethodPatch, "/v1/calls/"+c.ID, "owner-1", gin.H{"scheduled_at": now.Add(-time.Minute).Format(time.RFC3339)})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for past time, got %d", w.Code)
	}
	w = h.do(t, http.MethodPatch, "/v1/calls/"+c.ID, "owner-2", gin.H{"scheduled_at": at.Format(time.RFC3339)})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another owner, got %d", w.Code)
	}
}

func TestRescheduleCall_TerminalConflict(t *testing.T) {
	h := newHarness(t)
	c := h.createCall(t, "owner-1", time.Hour)
	_, err := h.store.Update(context.Background(), c.ID, func(sc *calls.ScheduledCall) error {
		sc.Status = calls.StatusCompleted
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	w := h.do(t, http.MethodPatch, "/v1/calls/"+c.ID, "owner-1", gin.H{"scheduled_at": now.Add(2 * time.Hour).Format(time.RFC3339)})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestDeleteCall(t *testing.T) {
	h := newHarness(t)
	c := h.createCall(t, "owner-1", time.Hour)

	if w := h.do(t, http.MethodDelete, "/v1/calls/"+c.ID, "owner-2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another owner, got %d", w.Code)
	}
	if w := h.do(t, http.MethodDelete, "/v1/calls/"+c.ID, "owner-1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := h.do(t, http.MethodGet, "/v1/calls/"+c.ID, "owner-1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCallsSummary(t *testing.T) {
	h := newHarness(t)
	h.createCall(t, "owner-1", time.Hour)
	h.createCall(t, "owner-1", 2*time.Hour)

	w := h.do(t, http.MethodGet, "/v1/calls/summary", "owner-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := h.do(t, http.MethodGet, "/v1/calls/summary?from=yesterday", "owner-1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad range, got %d", w.Code)
	}
}
