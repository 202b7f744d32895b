package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"care-call-scheduler/internal/auth"
	"care-call-scheduler/internal/calls"
	"care-call-scheduler/internal/reporting"
	"care-call-scheduler/internal/scheduler"
	"care-call-scheduler/pkg/logger"
)

// CallService is the write side of the owner API.
type CallService interface {
	CreateAndArm(ctx context.Context, in scheduler.NewCall) (calls.ScheduledCall, error)
	Reschedule(ctx context.Context, id string, at time.Time, actor string) (calls.ScheduledCall, error)
	Delete(ctx context.Context, id, actor string) error
}

// Handlers groups the owner-facing HTTP handlers. They parse input, check
// ownership, delegate, and render JSON.
type Handlers struct {
	Calls   CallService
	Store   calls.Store
	Reports *reporting.Service
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, calls.ErrValidation), errors.Is(err, reporting.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, calls.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, calls.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, calls.ErrTooSoon):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, calls.ErrProvider):
		status = http.StatusBadGateway
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func owner(c *gin.Context) (string, bool) {
	id, err := auth.OwnerID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "owner required"})
		return "", false
	}
	return id, true
}

// ownedCall loads :id and hides calls that belong to someone else.
func (h Handlers) ownedCall(c *gin.Context, ownerID string) (calls.ScheduledCall, bool) {
	call, err := h.Store.FindByID(c.Request.Context(), c.Param("id"))
	if err == nil && call.ScheduledBy != ownerID {
		err = calls.ErrNotFound
	}
	if err != nil {
		writeError(c, err)
		return calls.ScheduledCall{}, false
	}
	return call, true
}

type createCallRequest struct {
	ScheduledTo     string    `json:"scheduled_to"`
	RecipientNumber string    `json:"recipient_number"`
	RecipientName   string    `json:"recipient_name"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

func (h Handlers) CreateCall(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	scheduledTo := req.ScheduledTo
	if scheduledTo == "" {
		scheduledTo = ownerID
	}

	call, err := h.Calls.CreateAndArm(c.Request.Context(), scheduler.NewCall{
		ScheduledBy:     ownerID,
		ScheduledTo:     scheduledTo,
		RecipientNumber: req.RecipientNumber,
		RecipientName:   req.RecipientName,
		ScheduledAt:     req.ScheduledAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h Handlers) ListCalls(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	list, err := h.Store.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	if st := calls.Status(c.Query("status")); st != "" {
		filtered := make([]calls.ScheduledCall, 0, len(list))
		for _, call := range list {
			if call.Status == st {
				filtered = append(filtered, call)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

func (h Handlers) GetCall(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	call, ok := h.ownedCall(c, ownerID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, call)
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h Handlers) RescheduleCall(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, ok := h.ownedCall(c, ownerID)
	if !ok {
		return
	}

	updated, err := h.Calls.Reschedule(c.Request.Context(), call.ID, req.ScheduledAt, ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h Handlers) DeleteCall(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	call, ok := h.ownedCall(c, ownerID)
	if !ok {
		return
	}
	if err := h.Calls.Delete(c.Request.Context(), call.ID, ownerID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CallsSummary aggregates the owner's calls, optionally within
// ?from=...&to=... (RFC 3339).
func (h Handlers) CallsSummary(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}

	var rng reporting.TimeRange
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": p.key + " must be RFC 3339"})
			return
		}
		*p.dst = t
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{OwnerID: ownerID, Range: rng})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Register mounts the owner API on g, which must already authenticate.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.POST("/calls", h.CreateCall)
	g.GET("/calls", h.ListCalls)
	g.GET("/calls/summary", h.CallsSummary)
	g.GET("/calls/:id", h.GetCall)
	g.PATCH("/calls/:id", h.RescheduleCall)
	g.DELETE("/calls/:id", h.DeleteCall)
}
