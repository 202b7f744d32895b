package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"care-call-scheduler/internal/auth"
	"care-call-scheduler/internal/calls"
	"care-call-scheduler/internal/config"
	"care-call-scheduler/internal/conversation"
	"care-call-scheduler/internal/httpapi"
	"care-call-scheduler/internal/reporting"
	"care-call-scheduler/internal/scheduler"
	"care-call-scheduler/internal/telephony"
	"care-call-scheduler/pkg/utils"
)

type routeDeps struct {
	cfg     config.Config
	authMW  gin.HandlerFunc
	engine  *scheduler.Engine
	store   calls.Store
	reports *reporting.Service
	convo   *conversation.Service
	// ready checks local dependencies only; the telephony provider is
	// checked once at startup.
	ready func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := d.ready(ctx); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Provider webhooks are public but signed.
	{
		hooks := r.Group("")
		if d.cfg.Twilio.ValidateSignatures {
			hooks.Use(telephony.RequireSignature(d.cfg.Twilio.AuthToken, d.cfg.App.PublicURL))
		}
		h := telephony.WebhookHandler{
			Status:       d.engine,
			Replies:      d.engine,
			Conversation: d.convo,
		}
		hooks.POST(telephony.PathStatus, h.HandleStatus)
		hooks.POST(telephony.PathVoice, h.HandleVoice)
		hooks.POST(telephony.PathSpeech, h.HandleSpeech)
		hooks.POST(telephony.PathWhatsApp, h.HandleWhatsApp)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.OwnerID(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid})
		})

		httpapi.Handlers{
			Calls:   d.engine,
			Store:   d.store,
			Reports: d.reports,
		}.Register(v1)
	}
}

func readiness(ctx context.Context, db *sql.DB, rdb *redis.Client) error {
	if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}
