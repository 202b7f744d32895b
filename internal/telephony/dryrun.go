package telephony

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DryRunProvider logs what would be sent and returns synthetic handles.
// It backs local runs without vendor credentials; no webhooks will follow,
// so placed calls are resolved by the stale sweep.
type DryRunProvider struct {
	Log *slog.Logger
}

func (p DryRunProvider) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

func (p DryRunProvider) Name() string { return "dry-run" }

func (p DryRunProvider) HealthCheck(ctx context.Context) error { return nil }

func (p DryRunProvider) PlaceCall(ctx context.Context, number, callID string) (string, error) {
	handle := "DRYCA" + uuid.NewString()
	p.logger().Info("dry-run call", "to", number, "call_id", callID, "handle", handle)
	return handle, nil
}

func (p DryRunProvider) SendReminder(ctx context.Context, number, name string, at time.Time) (string, error) {
	handle := "DRYSM" + uuid.NewString()
	p.logger().Info("dry-run reminder", "to", whatsApp(number), "body", ReminderText(name, at), "handle", handle)
	return handle, nil
}
