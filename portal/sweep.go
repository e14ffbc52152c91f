package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackport-labs/stackport-go/internal/service/requests"
)

// startExpirationSweep warns requesters once when a completed deployment
// enters the expiry window. The one-way flag flip in the store decides which
// concurrent sweep notifies.
func startExpirationSweep(ctx context.Context, logger *slog.Logger, svc *requests.Service, interval time.Duration) {
	if svc == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.WarnExpiring(ctx); err != nil {
					logger.Error("expiration sweep failed", "error", err.Error())
				}
			}
		}
	}()
}
