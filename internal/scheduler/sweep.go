package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"care-call-scheduler/internal/calls"
)

// SweepStale fails attempts whose status callback never arrived, so the
// call retries or finishes instead of sitting in-progress forever. A claim
// left by a crash during the provider call is failed the same way.
func (e *Engine) SweepStale(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.StaleAfter)
	n := 0
	for _, st := range []calls.Status{calls.StatusInProgress, calls.StatusPending} {
		list, err := e.store.ListByStatus(ctx, st)
		if err != nil {
			return n, fmt.Errorf("list %s calls: %w", st, err)
		}
		for _, c := range list {
			a, ok := c.LastAttempt()
			if !ok || a.Resolved() || !a.StartedAt.Before(cutoff) {
				continue
			}
			e.logger().Warn("attempt stale, marking failed", "call_id", c.ID, "handle", a.ProviderCallHandle, "started_at", a.StartedAt)
			updated, applied, _, err := e.resolve(ctx, c.ID, a.ProviderCallHandle, calls.OutcomeFailed, 0)
			if err != nil {
				e.logger().Error("stale attempt not resolved", "call_id", c.ID, "err", err)
				continue
			}
			e.afterResolve(ctx, updated, a.ProviderCallHandle, calls.OutcomeFailed, applied)
			if applied {
				n++
			}
		}
	}
	return n, nil
}

// Sweeper runs SweepStale on a cron schedule.
type Sweeper struct {
	engine  *Engine
	cron    *cron.Cron
	timeout time.Duration
	log     *slog.Logger
}

// NewSweeper parses spec (standard five-field cron or a descriptor such as
// "@every 5m") and returns a stopped sweeper.
func NewSweeper(engine *Engine, spec string, log *slog.Logger) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		engine:  engine,
		cron:    cron.New(cron.WithLocation(engine.Location())),
		timeout: engine.cfg.DispatchTimeout,
		log:     log,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.engine.SweepStale(ctx)
	if err != nil {
		s.log.Error("stale sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.log.Info("stale sweep resolved attempts", "count", n)
	}
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to return.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
