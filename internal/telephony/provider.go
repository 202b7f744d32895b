package telephony

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Provider is the outbound side of a telephony vendor: placing voice calls
// and sending reminder messages. Vendor HTTP calls stay inside adapters.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall starts a call to number and returns the vendor call handle.
	// callID is echoed on the call's webhooks.
	PlaceCall(ctx context.Context, number, callID string) (string, error)
	// SendReminder messages number about the call at at and returns the
	// vendor message handle.
	SendReminder(ctx context.Context, number, name string, at time.Time) (string, error)
}

// Webhook paths served by WebhookHandler.
const (
	PathStatus   = "/webhooks/twilio/status"
	PathVoice    = "/webhooks/twilio/voice"
	PathSpeech   = "/webhooks/twilio/speech"
	PathWhatsApp = "/webhooks/twilio/whatsapp"
)

func withCallID(base, path, callID string) string {
	u := base + path
	if callID != "" {
		u += "?callId=" + url.QueryEscape(callID)
	}
	return u
}

// ReminderText is the message sent ahead of a call. at should already be
// in the recipient's zone.
func ReminderText(name string, at time.Time) string {
	return fmt.Sprintf(
		"Hello %s, this is a friendly reminder from Avery Care. Your health check-in call is scheduled for about %s. "+
			"Reply CONFIRM to confirm, or RESCHEDULE DD/MM/YYYY HH:MM to choose another time.",
		strings.TrimSpace(name), at.Format("03:04 PM"),
	)
}
