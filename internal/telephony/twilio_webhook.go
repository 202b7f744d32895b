package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"care-call-scheduler/internal/calls"
)

// Twilio posts application/x-www-form-urlencoded webhooks. These types hold
// the subset of fields the service acts on.

type StatusCallback struct {
	CallSid      string
	CallStatus   string
	CallDuration int
	// CallID is our record id, echoed from the callback URL.
	CallID string
}

func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	f := StatusCallback{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus: strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus"))),
		CallID:     r.URL.Query().Get("callId"),
	}
	if f.CallSid == "" {
		return StatusCallback{}, fmt.Errorf("CallSid is required")
	}
	if d := strings.TrimSpace(r.PostFormValue("CallDuration")); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			return StatusCallback{}, fmt.Errorf("CallDuration must be a non-negative integer, got %q", d)
		}
		f.CallDuration = n
	}
	return f, nil
}

// Outcome maps a terminal Twilio call status to a delivery outcome. Interim
// statuses (queued, ringing, in-progress) report false.
func (f StatusCallback) Outcome() (calls.Outcome, bool) {
	switch f.CallStatus {
	case "completed":
		if f.CallDuration > 0 {
			return calls.OutcomeAnswered, true
		}
		return calls.OutcomeAnsweredZero, true
	case "no-answer", "busy":
		return calls.OutcomeNoAnswer, true
	case "failed", "canceled":
		return calls.OutcomeFailed, true
	default:
		return "", false
	}
}

type SpeechInput struct {
	CallSid      string
	SpeechResult string
	CallID       string
}

func ParseSpeechInput(r *http.Request) (SpeechInput, error) {
	if err := r.ParseForm(); err != nil {
		return SpeechInput{}, err
	}
	return SpeechInput{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		CallID:       r.URL.Query().Get("callId"),
	}, nil
}

type InboundMessage struct {
	MessageSid string
	From       string
	To         string
	Body       string
}

func ParseInboundMessage(r *http.Request) (InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessage{}, err
	}
	m := InboundMessage{
		MessageSid: strings.TrimSpace(r.PostFormValue("MessageSid")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		Body:       strings.TrimSpace(r.PostFormValue("Body")),
	}
	if m.From == "" {
		return InboundMessage{}, fmt.Errorf("From is required")
	}
	return m, nil
}
