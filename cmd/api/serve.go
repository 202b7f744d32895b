package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"care-call-scheduler/internal/audit"
	"care-call-scheduler/internal/auth"
	"care-call-scheduler/internal/calls"
	"care-call-scheduler/internal/config"
	"care-call-scheduler/internal/conversation"
	"care-call-scheduler/internal/events"
	"care-call-scheduler/internal/reporting"
	"care-call-scheduler/internal/scheduler"
	"care-call-scheduler/internal/telephony"
	"care-call-scheduler/pkg/logger"
	"care-call-scheduler/pkg/utils"
)

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init failed: %w", err)
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("redis init failed: %w", err)
	}
	defer rdb.Close()

	var provider telephony.Provider
	if cfg.Twilio.DryRun {
		provider = telephony.DryRunProvider{Log: log}
	} else {
		provider = telephony.NewTwilioClient(telephony.TwilioConfig{
			AccountSID:        cfg.Twilio.AccountSID,
			AuthToken:         cfg.Twilio.AuthToken,
			CallerNumber:      cfg.Twilio.CallerNumber,
			WhatsAppNumber:    cfg.Twilio.WhatsAppNumber,
			BaseURL:           cfg.Twilio.APIBaseURL,
			PublicURL:         cfg.App.PublicURL,
			RequestsPerSecond: cfg.Twilio.RequestsPerSecond,
			Timeout:           cfg.Scheduler.DispatchTimeout,
		}, log)
	}

	var publisher scheduler.EventPublisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		conn, err := events.Dial(cfg.AMQP.URL, log)
		if err != nil {
			return fmt.Errorf("amqp init failed: %w", err)
		}
		defer conn.Close()
		p, err := events.NewAMQPPublisher(conn, cfg.AMQP.Queue)
		if err != nil {
			return fmt.Errorf("amqp publisher init failed: %w", err)
		}
		publisher = p
	}

	store := calls.NewPostgresStore(db)
	convo := conversation.NewService(store, conversation.DefaultScript(),
		conversation.NewRedisCache(rdb, cfg.Scheduler.ConversationTTL), log)

	engine := scheduler.NewEngine(store, provider, provider, scheduler.NewRegistry(nil), scheduler.Config{
		Location:        cfg.Scheduler.Location,
		RetryDelay:      cfg.Scheduler.RetryDelay,
		ReminderLead:    cfg.Scheduler.ReminderLead,
		MinReplyLead:    cfg.Scheduler.MinReplyLead,
		DispatchTimeout: cfg.Scheduler.DispatchTimeout,
		StaleAfter:      cfg.Scheduler.StaleAfter,
	})
	engine.Lease = utils.RedisLease{Client: rdb, Prefix: "care-call-scheduler:"}
	engine.Events = publisher
	engine.Audit = audit.NewService(audit.NewPostgresRepo(db))
	engine.OnFinished = convo.Finish
	engine.Log = log

	if err := provider.HealthCheck(ctx); err != nil {
		log.Warn("telephony provider health check failed", "provider", provider.Name(), "err", err)
	}

	armed, err := engine.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	log.Info("scheduler reconciled", "armed", armed)

	sweeper, err := scheduler.NewSweeper(engine, cfg.Scheduler.SweepSpec, log)
	if err != nil {
		return fmt.Errorf("sweeper init failed: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:     cfg,
		authMW:  auth.RequireAccessToken(authManager),
		engine:  engine,
		store:   store,
		reports: reporting.NewService(store),
		convo:   convo,
		ready:   func(ctx context.Context) error { return readiness(ctx, db, rdb) },
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Pending timers are dropped; Reconcile re-arms them on the next start.
	engine.Registry().StopAll()
	return nil
}
