package reporting

import "time"

// TimeRange is half-open: From inclusive, To exclusive. A zero range
// matches everything.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

func (r TimeRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	return !t.Before(r.From) && t.Before(r.To)
}

// CallsSummaryRequest filters an owner's calls by creation time.
type CallsSummaryRequest struct {
	OwnerID string    `json:"owner_id"`
	Range   TimeRange `json:"range"`
}

type CallsSummary struct {
	OwnerID string `json:"owner_id"`

	TotalCalls      int `json:"total_calls"`
	PendingCalls    int `json:"pending_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`

	// Attempt-level counts across every dispatch.
	Attempts         int `json:"attempts"`
	NoAnswerAttempts int `json:"no_answer_attempts"`
	// RescheduledCalls were moved at least once by an owner or recipient.
	RescheduledCalls int `json:"rescheduled_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// CompletionRate is completed / (completed + failed).
	CompletionRate float64 `json:"completion_rate"`
}
