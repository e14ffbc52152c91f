package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stackport-labs/stackport-go/internal/auditexport"
	"github.com/stackport-labs/stackport-go/internal/platform/auditlog"
	"github.com/stackport-labs/stackport-go/internal/platform/auth"
	"github.com/stackport-labs/stackport-go/internal/platform/env"
	"github.com/stackport-labs/stackport-go/internal/platform/httpserver"
	"github.com/stackport-labs/stackport-go/internal/platform/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("AUDIT_HTTP_ADDR", ":8085")
	shutdownTimeout, err := env.Duration("AUDIT_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authenticator, err := auth.NewAuthenticator(ctx, authCfg)
	if err != nil {
		logger.Error("auth setup failed", "error", err)
		os.Exit(1)
	}

	exportCfg, err := auditexport.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid export config", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("audit"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"audit",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
					return db.PingContext(ctx)
				}),
			},
		),
	)

	api := newAuditAPI(logger, db, exportCfg)
	api.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Authorize:     auditReadAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return auditlog.InsertAuthDeny(auditCtx, db, "audit", event)
		},
		SkipPrefixes: []string{"/healthz", "/readyz"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         "audit",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "audit", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// auditReadAuthorizer restricts the whole trail to approvers and admins.
// Requesters read their own history through the portal, not here.
func auditReadAuthorizer() auth.AuthorizeFunc {
	return func(r *http.Request, identity auth.Identity) error {
		if auth.HasAtLeast(identity.Roles, auth.RoleApprover) {
			return nil
		}
		return auth.ErrForbidden
	}
}
