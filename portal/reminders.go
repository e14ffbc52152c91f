package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackport-labs/stackport-go/internal/service/requests"
)

// startReminderSweep nudges approvers about long-pending requests. The
// cool-down lives in the service, so overlapping sweeps never double-send.
func startReminderSweep(ctx context.Context, logger *slog.Logger, svc *requests.Service, interval time.Duration) {
	if svc == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.SendApprovalReminders(ctx); err != nil {
					logger.Error("reminder sweep failed", "error", err.Error())
				}
			}
		}
	}()
}
