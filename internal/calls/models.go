package calls

import "time"

// ScheduledCall is a "call this contact at time T" intent together with its
// delivery state and retry budget.
//
// Recipient fields are a snapshot taken at creation and are never edited
// afterwards. ScheduledAtHistory and Transcript are append-only.
type ScheduledCall struct {
	ID string `json:"id" db:"id"`

	// ScheduledBy is the owning principal; ScheduledTo the target contact
	// reference (may equal ScheduledBy).
	ScheduledBy string `json:"scheduled_by" db:"scheduled_by"`
	ScheduledTo string `json:"scheduled_to" db:"scheduled_to"`

	RecipientNumber string `json:"recipient_number" db:"recipient_number"`
	RecipientName   string `json:"recipient_name" db:"recipient_name"`

	ScheduledAt        time.Time   `json:"scheduled_at" db:"scheduled_at"`
	ScheduledAtHistory []time.Time `json:"scheduled_at_history" db:"scheduled_at_history"`

	Status    Status `json:"status" db:"status"`
	TriesLeft int    `json:"tries_left" db:"tries_left"`

	// ProviderCallHandle correlates the latest dispatch with its status callback.
	ProviderCallHandle string `json:"provider_call_handle,omitempty" db:"provider_call_handle"`

	StartTime         *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty" db:"end_time"`
	DurationInSeconds int        `json:"duration_in_seconds" db:"duration_seconds"`

	Transcript []TranscriptTurn `json:"transcript" db:"transcript"`
	AISummary  string           `json:"ai_summary,omitempty" db:"ai_summary"`

	Attempts []Attempt `json:"attempts" db:"attempts"`

	Version   int64     `json:"-" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MaxTries is the initial retry budget of every call.
const MaxTries = 3

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type TranscriptTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Outcome is the definitive result of one delivery attempt as reported by
// the provider's status callback.
type Outcome string

const (
	OutcomeAnswered     Outcome = "answered-with-duration"
	OutcomeNoAnswer     Outcome = "no-answer"
	OutcomeFailed       Outcome = "failed"
	OutcomeAnsweredZero Outcome = "answered-zero-duration"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAnswered, OutcomeNoAnswer, OutcomeFailed, OutcomeAnsweredZero:
		return true
	default:
		return false
	}
}

// Attempt records one dispatch. Outcome is empty while the attempt is live.
type Attempt struct {
	ProviderCallHandle string     `json:"provider_call_handle"`
	StartedAt          time.Time  `json:"started_at"`
	Outcome            Outcome    `json:"outcome,omitempty"`
	DurationSeconds    int        `json:"duration_seconds,omitempty"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

func (a Attempt) Resolved() bool { return a.Outcome != "" }

// LastAttempt returns the most recent attempt, if any.
func (c ScheduledCall) LastAttempt() (Attempt, bool) {
	if len(c.Attempts) == 0 {
		return Attempt{}, false
	}
	return c.Attempts[len(c.Attempts)-1], true
}

// AttemptLive reports whether a dispatch is in flight and awaiting its outcome.
func (c ScheduledCall) AttemptLive() bool {
	a, ok := c.LastAttempt()
	return ok && !a.Resolved()
}

// Clone returns a copy that shares no slices or pointers with c.
func (c ScheduledCall) Clone() ScheduledCall {
	out := c
	out.ScheduledAtHistory = append([]time.Time(nil), c.ScheduledAtHistory...)
	out.Transcript = append([]TranscriptTurn(nil), c.Transcript...)
	out.Attempts = make([]Attempt, len(c.Attempts))
	for i, a := range c.Attempts {
		out.Attempts[i] = a
		if a.ResolvedAt != nil {
			t := *a.ResolvedAt
			out.Attempts[i].ResolvedAt = &t
		}
	}
	if c.StartTime != nil {
		t := *c.StartTime
		out.StartTime = &t
	}
	if c.EndTime != nil {
		t := *c.EndTime
		out.EndTime = &t
	}
	return out
}

// PushSchedule moves ScheduledAt and records the new instant in the history.
func (c *ScheduledCall) PushSchedule(at time.Time) {
	c.ScheduledAt = at
	c.ScheduledAtHistory = append(c.ScheduledAtHistory, at)
}
