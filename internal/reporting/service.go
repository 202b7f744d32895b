package reporting

import (
	"context"
	"errors"

	"care-call-scheduler/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side reporting needs; calls.Store satisfies it.
type Repository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]calls.ScheduledCall, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OwnerID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if !req.Range.IsZero() && (req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From)) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListByOwner(ctx, req.OwnerID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{OwnerID: req.OwnerID}
	for _, c := range rows {
		if !req.Range.Contains(c.CreatedAt) {
			continue
		}
		out.TotalCalls++
		switch c.Status {
		case calls.StatusPending:
			out.PendingCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		case calls.StatusCompleted:
			out.CompletedCalls++
			out.TotalDurationSeconds += c.DurationInSeconds
		case calls.StatusFailed:
			out.FailedCalls++
		}

		out.Attempts += len(c.Attempts)
		for _, a := range c.Attempts {
			if a.Outcome == calls.OutcomeNoAnswer {
				out.NoAnswerAttempts++
			}
		}
		// History grows by one per retry and per reschedule.
		if len(c.ScheduledAtHistory)-retries(c) > 1 {
			out.RescheduledCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	if finished := out.CompletedCalls + out.FailedCalls; finished > 0 {
		out.CompletionRate = float64(out.CompletedCalls) / float64(finished)
	}
	return out, nil
}

// retries counts resolved attempts that led to another attempt.
func retries(c calls.ScheduledCall) int {
	n := 0
	for i, a := range c.Attempts {
		if !a.Resolved() {
			continue
		}
		last := i == len(c.Attempts)-1
		if !last || !c.Status.Terminal() {
			n++
		}
	}
	return n
}
