package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackport-labs/stackport-go/internal/service/requests"
)

// startReconciler polls the pipeline for every deploying request and records
// terminal build results. Pipelines that can call back use POST
// /requests/{id}/result instead; running both is safe because the result
// write is a conditional status update.
func startReconciler(ctx context.Context, logger *slog.Logger, svc *requests.Service, interval time.Duration) {
	if svc == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.ReconcileDeploying(ctx); err != nil {
					logger.Error("reconcile sweep failed", "error", err.Error())
				}
			}
		}
	}()
}
