package notify

import (
	"context"
	"log/slog"
)

// Notifier is the outbound hook fired when a post reaches a terminal
// status. Calls are fire-and-forget: the orchestrator logs failures and
// moves on.
type Notifier interface {
	Notify(ctx context.Context, userID int64, event string, data map[string]any) error
}

type logNotifier struct{}

func NewLogNotifier() Notifier {
	return &logNotifier{}
}

func (n *logNotifier) Notify(ctx context.Context, userID int64, event string, data map[string]any) error {
	slog.Info("notify", "user_id", userID, "event", event, "data", data)
	return nil
}
