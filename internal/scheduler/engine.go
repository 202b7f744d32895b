package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"care-call-scheduler/internal/audit"
	"care-call-scheduler/internal/calls"
	"care-call-scheduler/internal/events"
)

// Dispatcher places outbound calls.
type Dispatcher interface {
	// PlaceCall initiates a call to number and returns the provider's
	// handle for it. callID is echoed back on the provider's webhooks.
	PlaceCall(ctx context.Context, number, callID string) (string, error)
}

// Notifier sends the pre-call reminder message.
type Notifier interface {
	SendReminder(ctx context.Context, number, name string, at time.Time) (string, error)
}

// Lease guards dispatch against other engine instances sharing the store.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type Config struct {
	// Location is the zone in which recipient-facing times are expressed.
	Location *time.Location

	RetryDelay   time.Duration
	ReminderLead time.Duration
	// MinReplyLead is how far in the future a reply-driven reschedule must be.
	MinReplyLead time.Duration

	// DispatchTimeout bounds timer-driven work, which has no caller context.
	DispatchTimeout time.Duration
	// StaleAfter is how long an attempt may stay unresolved before the
	// sweep treats it as failed.
	StaleAfter time.Duration
	LeaseTTL   time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.Location == nil {
		out.Location = time.UTC
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 15 * time.Minute
	}
	if out.ReminderLead <= 0 {
		out.ReminderLead = 10 * time.Minute
	}
	if out.MinReplyLead <= 0 {
		out.MinReplyLead = 5 * time.Minute
	}
	if out.DispatchTimeout <= 0 {
		out.DispatchTimeout = 30 * time.Second
	}
	if out.StaleAfter <= 0 {
		out.StaleAfter = 30 * time.Minute
	}
	if out.LeaseTTL <= 0 {
		out.LeaseTTL = 2 * time.Minute
	}
	return out
}

// dispatchSkew tolerates timers that fire slightly early.
const dispatchSkew = time.Second

// Engine owns the lifecycle of scheduled calls: arming timers, dispatching,
// applying provider outcomes and retries, and owner or recipient driven
// reschedules.
//
// All record changes go through calls.Store.Update, so a dispatch and a
// status callback for the same call never interleave.
type Engine struct {
	store      calls.Store
	dispatcher Dispatcher
	notifier   Notifier
	timers     *Registry
	cfg        Config

	// Optional collaborators. Nil values are skipped.
	Lease  Lease
	Events EventPublisher
	Audit  *audit.Service
	// OnFinished runs after a call reaches a terminal status or is deleted.
	OnFinished func(ctx context.Context, c calls.ScheduledCall)

	Log *slog.Logger
	Now func() time.Time
}

func NewEngine(store calls.Store, dispatcher Dispatcher, notifier Notifier, timers *Registry, cfg Config) *Engine {
	if timers == nil {
		timers = NewRegistry(nil)
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		timers:     timers,
		cfg:        cfg.withDefaults(),
		Log:        slog.Default(),
		Now:        time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// Location returns the zone used for recipient-facing times.
func (e *Engine) Location() *time.Location { return e.cfg.Location }

// Registry exposes the timer registry, mainly for health reporting.
func (e *Engine) Registry() *Registry { return e.timers }

func (e *Engine) publish(ctx context.Context, t events.Type, c calls.ScheduledCall) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Publish(ctx, events.FromCall(t, c, e.now())); err != nil {
		e.logger().Warn("event publish failed", "type", t, "call_id", c.ID, "err", err)
	}
}

func (e *Engine) logAudit(err error) {
	if err != nil {
		e.logger().Warn("audit append failed", "err", err)
	}
}

// NewCall is the input to CreateAndArm.
type NewCall struct {
	ScheduledBy     string
	ScheduledTo     string
	RecipientNumber string
	RecipientName   string
	ScheduledAt     time.Time
}

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

func (n NewCall) validate() error {
	var missing []string
	if strings.TrimSpace(n.ScheduledBy) == "" {
		missing = append(missing, "scheduledBy")
	}
	if strings.TrimSpace(n.ScheduledTo) == "" {
		missing = append(missing, "scheduledTo")
	}
	if strings.TrimSpace(n.RecipientName) == "" {
		missing = append(missing, "recipientName")
	}
	if n.ScheduledAt.IsZero() {
		missing = append(missing, "scheduledAt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", calls.ErrValidation, strings.Join(missing, ", "))
	}
	if !e164.MatchString(n.RecipientNumber) {
		return fmt.Errorf("%w: recipientNumber must be E.164", calls.ErrValidation)
	}
	return nil
}

// CreateAndArm persists a new pending call and arms its timers. An arming
// failure is logged; the stored record is returned regardless.
func (e *Engine) CreateAndArm(ctx context.Context, in NewCall) (calls.ScheduledCall, error) {
	if err := in.validate(); err != nil {
		return calls.ScheduledCall{}, err
	}

	now := e.now().UTC()
	at := in.ScheduledAt.UTC()
	c := calls.ScheduledCall{
		ID:                 uuid.NewString(),
		ScheduledBy:        in.ScheduledBy,
		ScheduledTo:        in.ScheduledTo,
		RecipientNumber:    in.RecipientNumber,
		RecipientName:      strings.TrimSpace(in.RecipientName),
		ScheduledAt:        at,
		ScheduledAtHistory: []time.Time{at},
		Status:             calls.StatusPending,
		TriesLeft:          calls.MaxTries,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.store.Create(ctx, c); err != nil {
		return calls.ScheduledCall{}, err
	}
	e.logger().Info("call scheduled", "call_id", c.ID, "owner", c.ScheduledBy, "scheduled_at", at)

	if e.Audit != nil {
		e.logAudit(e.Audit.LogCreated(ctx, c.ID, c.ScheduledBy, at))
	}
	e.publish(ctx, events.TypeScheduled, c)

	if err := e.Arm(ctx, c); err != nil {
		e.logger().Error("arm failed", "call_id", c.ID, "err", err)
	}
	if latest, err := e.store.FindByID(ctx, c.ID); err == nil {
		return latest, nil
	}
	return c, nil
}

// Arm (re)installs the dispatch and reminder timers for c. A call that is
// already due is dispatched inline and the dispatch error is returned.
func (e *Engine) Arm(ctx context.Context, c calls.ScheduledCall) error {
	log := e.logger().With("call_id", c.ID)
	if c.TriesLeft <= 0 || c.Status.Terminal() {
		log.Debug("arm skipped", "status", c.Status, "tries_left", c.TriesLeft)
		return nil
	}

	now := e.now()
	if !c.ScheduledAt.After(now) {
		e.timers.Cancel(c.ID)
		log.Info("call due, dispatching now", "scheduled_at", c.ScheduledAt)
		return e.Dispatch(ctx, c.ID)
	}

	id := c.ID
	e.timers.Arm(id, PurposeDispatch, c.ScheduledAt.Sub(now), func() { e.fireDispatch(id) })

	remindAt := c.ScheduledAt.Add(-e.cfg.ReminderLead)
	if remindAt.After(now) {
		e.timers.Arm(id, PurposeReminder, remindAt.Sub(now), func() { e.fireReminder(id) })
	} else {
		e.timers.Stop(id, PurposeReminder)
	}

	log.Info("call armed",
		"scheduled_at", c.ScheduledAt.In(e.cfg.Location),
		"tries_left", c.TriesLeft,
		"reminder", remindAt.After(now),
	)
	return nil
}

// Cancel removes every armed timer for id.
func (e *Engine) Cancel(id string) bool {
	return e.timers.Cancel(id)
}

func (e *Engine) fireDispatch(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DispatchTimeout)
	defer cancel()
	if err := e.Dispatch(ctx, id); err != nil {
		e.logger().Error("dispatch failed", "call_id", id, "err", err)
	}
}

func (e *Engine) fireReminder(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DispatchTimeout)
	defer cancel()
	if err := e.SendReminder(ctx, id); err != nil {
		e.logger().Warn("reminder failed", "call_id", id, "err", err)
	}
}

// SendReminder notifies the recipient of the upcoming attempt. Calls that
// are finished or mid-attempt are skipped.
func (e *Engine) SendReminder(ctx context.Context, id string) error {
	c, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status.Terminal() || c.TriesLeft <= 0 || c.AttemptLive() {
		e.logger().Debug("reminder skipped", "call_id", id, "status", c.Status)
		return nil
	}
	if e.notifier == nil {
		return nil
	}
	handle, err := e.notifier.SendReminder(ctx, c.RecipientNumber, c.RecipientName, c.ScheduledAt.In(e.cfg.Location))
	if err != nil {
		return fmt.Errorf("%w: reminder: %w", calls.ErrProvider, err)
	}
	e.logger().Info("reminder sent", "call_id", id, "message_handle", handle)
	return nil
}

// Dispatch places the call for id if it is still due and has budget left.
// A provider failure changes nothing on the record.
func (e *Engine) Dispatch(ctx context.Context, id string) error {
	log := e.logger().With("call_id", id)

	c, err := e.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			log.Info("dispatch skipped, call deleted")
			return nil
		}
		return err
	}
	if c.Status.Terminal() || c.TriesLeft <= 0 {
		log.Info("dispatch skipped", "status", c.Status, "tries_left", c.TriesLeft)
		return nil
	}
	if c.AttemptLive() {
		log.Info("dispatch skipped, attempt already live", "handle", c.ProviderCallHandle)
		return nil
	}
	if c.ScheduledAt.Sub(e.now()) > dispatchSkew {
		log.Info("dispatch skipped, call was rescheduled", "scheduled_at", c.ScheduledAt)
		return nil
	}

	if e.Lease != nil {
		key := fmt.Sprintf("dispatch:%s:%d", c.ID, c.ScheduledAt.Unix())
		ok, err := e.Lease.Acquire(ctx, key, e.cfg.LeaseTTL)
		switch {
		case err != nil:
			log.Warn("dispatch lease unavailable, continuing", "err", err)
		case !ok:
			log.Info("dispatch skipped, lease held elsewhere")
			return nil
		}
	}

	// Claim the attempt before the provider call so a concurrent reschedule
	// or a second timer sees it as live.
	claimedAt := e.now().UTC()
	claimed := -1
	if _, err := e.store.Update(ctx, id, func(c *calls.ScheduledCall) error {
		if c.Status.Terminal() || c.TriesLeft <= 0 || c.AttemptLive() || c.ScheduledAt.Sub(claimedAt) > dispatchSkew {
			return calls.ErrUnchanged
		}
		c.Attempts = append(c.Attempts, calls.Attempt{StartedAt: claimedAt})
		claimed = len(c.Attempts) - 1
		return nil
	}); err != nil {
		return fmt.Errorf("claim dispatch %s: %w", id, err)
	}
	if claimed < 0 {
		log.Info("dispatch skipped, call changed before claim")
		return nil
	}

	handle, err := e.dispatcher.PlaceCall(ctx, c.RecipientNumber, c.ID)
	if err != nil {
		e.releaseClaim(ctx, id, claimed, claimedAt)
		return fmt.Errorf("%w: place call %s: %w", calls.ErrProvider, c.ID, err)
	}

	recorded := false
	updated, err := e.store.Update(ctx, id, func(c *calls.ScheduledCall) error {
		a, ok := claimedAttempt(c, claimed, claimedAt)
		if !ok || a.Resolved() || (a.ProviderCallHandle != "" && a.ProviderCallHandle != handle) {
			return calls.ErrUnchanged
		}
		a.ProviderCallHandle = handle
		started := claimedAt
		c.Status = calls.StatusInProgress
		c.ProviderCallHandle = handle
		c.StartTime = &started
		c.EndTime = nil
		recorded = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("record dispatch %s: %w", handle, err)
	}
	if !recorded {
		log.Info("call dispatched, outcome already recorded", "handle", handle, "status", updated.Status)
		return nil
	}

	log.Info("call dispatched", "handle", handle, "tries_left", updated.TriesLeft)
	e.publish(ctx, events.TypeDispatched, updated)
	return nil
}

// claimedAttempt returns the attempt claimed at index idx, or false if the
// record no longer holds that claim.
func claimedAttempt(c *calls.ScheduledCall, idx int, at time.Time) (*calls.Attempt, bool) {
	if idx < 0 || idx >= len(c.Attempts) || !c.Attempts[idx].StartedAt.Equal(at) {
		return nil, false
	}
	return &c.Attempts[idx], true
}

// releaseClaim drops an attempt whose provider call never started.
func (e *Engine) releaseClaim(ctx context.Context, id string, idx int, at time.Time) {
	_, err := e.store.Update(ctx, id, func(c *calls.ScheduledCall) error {
		a, ok := claimedAttempt(c, idx, at)
		if !ok || a.Resolved() || a.ProviderCallHandle != "" {
			return calls.ErrUnchanged
		}
		c.Attempts = append(c.Attempts[:idx], c.Attempts[idx+1:]...)
		return nil
	})
	if err != nil && !errors.Is(err, calls.ErrNotFound) {
		e.logger().Error("release dispatch claim failed", "call_id", id, "err", err)
	}
}

// ApplyStatus resolves the live attempt identified by handle. Outcomes for
// finished calls or already-resolved attempts are ignored and the current
// record is returned unchanged.
func (e *Engine) ApplyStatus(ctx context.Context, handle string, outcome calls.Outcome, duration int) (calls.ScheduledCall, error) {
	return e.ApplyCallStatus(ctx, "", handle, outcome, duration)
}

// ApplyCallStatus is ApplyStatus with the call id echoed by the provider.
// When no record carries handle yet, because the callback beat the dispatch
// update, the outcome is matched to the in-flight attempt of callID.
func (e *Engine) ApplyCallStatus(ctx context.Context, callID, handle string, outcome calls.Outcome, duration int) (calls.ScheduledCall, error) {
	if !outcome.Valid() {
		return calls.ScheduledCall{}, fmt.Errorf("%w: outcome %q", calls.ErrValidation, outcome)
	}
	if handle == "" {
		return calls.ScheduledCall{}, fmt.Errorf("%w: provider call handle required", calls.ErrValidation)
	}
	if outcome == calls.OutcomeAnswered && duration <= 0 {
		outcome = calls.OutcomeAnsweredZero
	}

	found, err := e.store.FindByProviderHandle(ctx, handle)
	byID := false
	if errors.Is(err, calls.ErrNotFound) && callID != "" {
		found, err = e.store.FindByID(ctx, callID)
		byID = true
	}
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			return calls.ScheduledCall{}, fmt.Errorf("%w: %s", calls.ErrUnknownHandle, handle)
		}
		return calls.ScheduledCall{}, err
	}

	updated, applied, matched, err := e.resolve(ctx, found.ID, handle, outcome, duration)
	if err != nil {
		return calls.ScheduledCall{}, err
	}
	if byID && !matched {
		return calls.ScheduledCall{}, fmt.Errorf("%w: %s", calls.ErrUnknownHandle, handle)
	}
	e.afterResolve(ctx, updated, handle, outcome, applied)
	return updated, nil
}

// resolve records outcome on the attempt of call id that handle identifies.
// An empty handle, or one not seen before, matches the unfilled claim of an
// in-flight dispatch. matched reports whether any attempt corresponded.
func (e *Engine) resolve(ctx context.Context, id, handle string, outcome calls.Outcome, duration int) (updated calls.ScheduledCall, applied, matched bool, err error) {
	now := e.now().UTC()
	updated, err = e.store.Update(ctx, id, func(c *calls.ScheduledCall) error {
		idx := attemptIndex(c.Attempts, handle)
		if idx < 0 {
			switch {
			case handle != "" && c.ProviderCallHandle == handle:
				start := now
				if c.StartTime != nil {
					start = *c.StartTime
				}
				c.Attempts = append(c.Attempts, calls.Attempt{ProviderCallHandle: handle, StartedAt: start})
				idx = len(c.Attempts) - 1
			case c.AttemptLive() && c.Attempts[len(c.Attempts)-1].ProviderCallHandle == "":
				idx = len(c.Attempts) - 1
			default:
				return calls.ErrUnchanged
			}
		}
		matched = true
		a := &c.Attempts[idx]
		if c.Status.Terminal() || a.Resolved() {
			return calls.ErrUnchanged
		}
		if a.ProviderCallHandle == "" && handle != "" {
			a.ProviderCallHandle = handle
			c.ProviderCallHandle = handle
			started := a.StartedAt
			c.StartTime = &started
		}
		a.Outcome = outcome
		a.DurationSeconds = duration
		a.ResolvedAt = &now

		applied = true
		applyOutcome(c, outcome, duration, now, e.cfg.RetryDelay)
		return nil
	})
	return updated, applied, matched, err
}

func (e *Engine) afterResolve(ctx context.Context, updated calls.ScheduledCall, handle string, outcome calls.Outcome, applied bool) {
	log := e.logger().With("call_id", updated.ID, "handle", handle, "outcome", outcome)
	if !applied {
		log.Info("status ignored", "status", updated.Status)
		return
	}

	switch {
	case updated.Status == calls.StatusCompleted:
		log.Info("call completed", "duration_seconds", updated.DurationInSeconds)
		e.finish(ctx, events.TypeCompleted, updated)
	case updated.Status == calls.StatusFailed:
		log.Info("call failed, retries exhausted")
		e.finish(ctx, events.TypeFailed, updated)
	default:
		log.Info("retry scheduled", "tries_left", updated.TriesLeft, "retry_at", updated.ScheduledAt.In(e.cfg.Location))
		e.publish(ctx, events.TypeRetryScheduled, updated)
		if err := e.Arm(ctx, updated); err != nil {
			log.Error("arm retry failed", "err", err)
		}
	}
}

// HandleProviderStatus is ApplyCallStatus without the record, for webhook
// use. callID may be empty.
func (e *Engine) HandleProviderStatus(ctx context.Context, callID, handle string, outcome calls.Outcome, duration int) error {
	_, err := e.ApplyCallStatus(ctx, callID, handle, outcome, duration)
	return err
}

func (e *Engine) finish(ctx context.Context, t events.Type, c calls.ScheduledCall) {
	e.timers.Cancel(c.ID)
	e.publish(ctx, t, c)
	if e.OnFinished != nil {
		e.OnFinished(ctx, c)
	}
}

func attemptIndex(attempts []calls.Attempt, handle string) int {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].ProviderCallHandle == handle {
			return i
		}
	}
	return -1
}

// applyOutcome moves c according to the outcome of its current attempt.
func applyOutcome(c *calls.ScheduledCall, outcome calls.Outcome, duration int, now time.Time, retryDelay time.Duration) {
	if outcome == calls.OutcomeAnswered && duration > 0 {
		c.Status = calls.StatusCompleted
		c.EndTime = &now
		c.DurationInSeconds = duration
		c.TriesLeft = 0
		return
	}

	c.TriesLeft--
	if c.TriesLeft <= 0 {
		c.TriesLeft = 0
		c.Status = calls.StatusFailed
		c.EndTime = &now
		return
	}
	c.Status = calls.StatusInProgress
	c.PushSchedule(now.Add(retryDelay))
}

// Reschedule moves a call to at on behalf of its owner. at must be in the
// future and the call must be neither finished nor mid-attempt.
func (e *Engine) Reschedule(ctx context.Context, id string, at time.Time, actor string) (calls.ScheduledCall, error) {
	return e.reschedule(ctx, id, at, 0, actor)
}

func (e *Engine) reschedule(ctx context.Context, id string, at time.Time, minLead time.Duration, actor string) (calls.ScheduledCall, error) {
	if at.IsZero() {
		return calls.ScheduledCall{}, fmt.Errorf("%w: scheduledAt required", calls.ErrValidation)
	}
	if !at.After(e.now().Add(minLead)) {
		return calls.ScheduledCall{}, fmt.Errorf("%w: %s", calls.ErrTooSoon, at.In(e.cfg.Location).Format(time.RFC3339))
	}

	var prev time.Time
	updated, err := e.store.Update(ctx, id, func(c *calls.ScheduledCall) error {
		if c.Status.Terminal() {
			return fmt.Errorf("%w: call is %s", calls.ErrConflict, c.Status)
		}
		if c.AttemptLive() {
			return fmt.Errorf("%w: call attempt in progress", calls.ErrConflict)
		}
		prev = c.ScheduledAt
		c.PushSchedule(at.UTC())
		return nil
	})
	if err != nil {
		return calls.ScheduledCall{}, err
	}

	e.logger().Info("call rescheduled", "call_id", id, "from", prev, "to", updated.ScheduledAt, "actor", actor)
	if e.Audit != nil {
		e.logAudit(e.Audit.LogRescheduled(ctx, id, updated.ScheduledBy, actor, prev, updated.ScheduledAt))
	}
	e.publish(ctx, events.TypeRescheduled, updated)
	if err := e.Arm(ctx, updated); err != nil {
		e.logger().Error("arm after reschedule failed", "call_id", id, "err", err)
	}
	return updated, nil
}

// Delete disarms and removes a call in any status.
func (e *Engine) Delete(ctx context.Context, id, actor string) error {
	c, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	e.timers.Cancel(id)
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}

	e.logger().Info("call deleted", "call_id", id, "status", c.Status, "actor", actor)
	if e.Audit != nil {
		e.logAudit(e.Audit.LogDeleted(ctx, id, c.ScheduledBy, actor))
	}
	e.publish(ctx, events.TypeDeleted, c)
	if e.OnFinished != nil {
		e.OnFinished(ctx, c)
	}
	return nil
}

// Reconcile re-arms timers from the store after a restart: pending calls
// with budget left, and in-progress calls between attempts. Attempts left
// live by a crash are handed to SweepStale. It returns the number of calls
// armed or dispatched.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	armed := 0
	for _, st := range []calls.Status{calls.StatusPending, calls.StatusInProgress} {
		list, err := e.store.ListByStatus(ctx, st)
		if err != nil {
			return armed, fmt.Errorf("list %s calls: %w", st, err)
		}
		for _, c := range list {
			if c.TriesLeft <= 0 || c.AttemptLive() {
				continue
			}
			if err := e.Arm(ctx, c); err != nil {
				e.logger().Error("reconcile arm failed", "call_id", c.ID, "err", err)
			}
			armed++
		}
	}

	swept, err := e.SweepStale(ctx)
	if err != nil {
		e.logger().Warn("stale sweep failed", "err", err)
	}
	e.logger().Info("reconciled scheduled calls", "armed", armed, "stale_resolved", swept, "timers", e.timers.Len())
	return armed, nil
}
