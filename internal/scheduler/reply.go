package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"care-call-scheduler/internal/calls"
)

// Reply texts sent back to the recipient.
const (
	ReplyNoActiveCall = "We couldn't find an upcoming call for this number."
	ReplyConfirmed    = "Thanks! Your call is confirmed. We'll ring you at the scheduled time."
	ReplyBadFormat    = "Sorry, we couldn't read that time. Please use RESCHEDULE DD/MM/YYYY HH:MM, for example RESCHEDULE 20/08/2025 18:30."
	ReplyTooSoon      = "Please choose a time at least %d minutes from now."
	ReplyNotEditable  = "This call can no longer be rescheduled."
	ReplyRescheduled  = "Done! Your call has been moved to %s."
	ReplyHelp         = "Reply CONFIRM to confirm your call, or RESCHEDULE DD/MM/YYYY HH:MM to pick a new time."
)

const replyTimeLayout = "02/01/2006 15:04"

var (
	confirmPattern    = regexp.MustCompile(`(?i)^confirm$`)
	reschedulePattern = regexp.MustCompile(`(?i)^reschedule\b\s*(.*)$`)
	replyTimePattern  = regexp.MustCompile(`^\d{2}/\d{2}/\d{4} \d{2}:\d{2}$`)
)

// ParseReplyTime parses "DD/MM/YYYY HH:MM" as wall time in loc. Impossible
// dates such as 32/13/2025 are rejected.
func ParseReplyTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !replyTimePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: expected DD/MM/YYYY HH:MM, got %q", calls.ErrValidation, s)
	}
	t, err := time.ParseInLocation(replyTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", calls.ErrValidation, err)
	}
	return t, nil
}

// HandleReminderReply interprets a recipient's reply to a reminder and
// returns the text to send back. Only the sender's earliest pending call is
// affected. Errors are returned only for infrastructure failures.
func (e *Engine) HandleReminderReply(ctx context.Context, from, body string) (string, error) {
	number := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:"))
	text := strings.TrimSpace(body)
	log := e.logger().With("from", number)

	c, err := e.store.FindPendingByRecipient(ctx, number)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			log.Info("reply without pending call")
			return ReplyNoActiveCall, nil
		}
		return "", err
	}
	log = log.With("call_id", c.ID)
	if e.Audit != nil {
		e.logAudit(e.Audit.LogReply(ctx, c.ID, c.ScheduledBy, number, text))
	}

	if confirmPattern.MatchString(text) {
		log.Info("call confirmed by recipient")
		return ReplyConfirmed, nil
	}

	m := reschedulePattern.FindStringSubmatch(text)
	if m == nil {
		return ReplyHelp, nil
	}

	at, err := ParseReplyTime(m[1], e.cfg.Location)
	if err != nil {
		log.Info("reschedule reply rejected", "text", text, "err", err)
		return ReplyBadFormat, nil
	}

	updated, err := e.reschedule(ctx, c.ID, at, e.cfg.MinReplyLead, number)
	switch {
	case errors.Is(err, calls.ErrTooSoon):
		return fmt.Sprintf(ReplyTooSoon, int(e.cfg.MinReplyLead/time.Minute)), nil
	case errors.Is(err, calls.ErrConflict), errors.Is(err, calls.ErrNotFound):
		return ReplyNotEditable, nil
	case err != nil:
		return "", err
	}
	return fmt.Sprintf(ReplyRescheduled, updated.ScheduledAt.In(e.cfg.Location).Format("02/01/2006 03:04 PM")), nil
}
