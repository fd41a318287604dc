package session

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper periodically evicts expired sessions until ctx is cancelled.
// It returns immediately when interval is not positive.
func StartSweeper(ctx context.Context, tracker *Tracker, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("Session sweeper started", "interval", interval, "timeout", tracker.Timeout())

	for {
		select {
		case <-ticker.C:
			if removed := tracker.CleanupExpired(); removed > 0 {
				slog.Info("Session sweeper evicted expired sessions", "count", removed)
			}
		case <-ctx.Done():
			slog.Info("Session sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}
