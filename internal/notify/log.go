package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send logs the notification. Failed runs log at Warn.
func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	if !n.Success {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "run finished",
		"run_id", n.RunID,
		"account", n.AccountID,
		"status", n.Status,
		"subject", n.Subject,
		"body", n.Body,
		"posts", len(n.PostURLs),
	)
	return nil
}
