package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"care-call-scheduler/internal/calls"
)

func formRequest(target, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseStatusCallback(t *testing.T) {
	r := formRequest("/webhooks/twilio/status?callId=c1", "CallSid=CA123&CallStatus=completed&CallDuration=42")
	f, err := ParseStatusCallback(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.CallSid != "CA123" || f.CallID != "c1" || f.CallDuration != 42 {
		t.Fatalf("unexpected form: %+v", f)
	}

	if _, err := ParseStatusCallback(formRequest("/", "CallStatus=completed")); err == nil {
		t.Fatalf("expected error without CallSid")
	}
	if _, err := ParseStatusCallback(formRequest("/", "CallSid=CA1&CallDuration=abc")); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestStatusCallback_Outcome(t *testing.T) {
	cases := []struct {
		status   string
		duration int
		want     calls.Outcome
		ok       bool
	}{
		{"completed", 42, calls.OutcomeAnswered, true},
		{"completed", 0, calls.OutcomeAnsweredZero, true},
		{"no-answer", 0, calls.OutcomeNoAnswer, true},
		{"busy", 0, calls.OutcomeNoAnswer, true},
		{"failed", 0, calls.OutcomeFailed, true},
		{"canceled", 0, calls.OutcomeFailed, true},
		{"ringing", 0, "", false},
		{"in-progress", 0, "", false},
	}
	for _, tc := range cases {
		got, ok := StatusCallback{CallStatus: tc.status, CallDuration: tc.duration}.Outcome()
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s/%d: expected %q %v, got %q %v", tc.status, tc.duration, tc.want, tc.ok, got, ok)
		}
	}
}

func TestParseInboundMessage(t *testing.T) {
	m, err := ParseInboundMessage(formRequest("/", "MessageSid=SM1&From=whatsapp%3A%2B919812345678&Body=+CONFIRM+"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.From != "whatsapp:+919812345678" || m.Body != "CONFIRM" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if _, err := ParseInboundMessage(formRequest("/", "Body=hi")); err == nil {
		t.Fatalf("expected error without From")
	}
}
