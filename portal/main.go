package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stackport-labs/stackport-go/internal/auditexport"
	"github.com/stackport-labs/stackport-go/internal/catalog"
	"github.com/stackport-labs/stackport-go/internal/notify"
	"github.com/stackport-labs/stackport-go/internal/pipeline"
	"github.com/stackport-labs/stackport-go/internal/platform/auditlog"
	"github.com/stackport-labs/stackport-go/internal/platform/auth"
	"github.com/stackport-labs/stackport-go/internal/platform/env"
	"github.com/stackport-labs/stackport-go/internal/platform/httpserver"
	"github.com/stackport-labs/stackport-go/internal/platform/objectstore"
	"github.com/stackport-labs/stackport-go/internal/platform/postgres"
	repopg "github.com/stackport-labs/stackport-go/internal/repo/postgres"
	"github.com/stackport-labs/stackport-go/internal/service/requests"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PORTAL_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("PORTAL_SHUTDOWN_TIMEOUT", 10*time.Second)
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

	catalogDir := env.String("PORTAL_CATALOG_DIR", "catalog")
	cat := catalog.NewService(catalogDir)
	if err := cat.Load(); err != nil {
		logger.Error("catalog load failed", "dir", catalogDir, "error", err)
		os.Exit(2)
	}
	logger.Info("catalog loaded", "dir", catalogDir, "items", len(cat.All()))

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()
	archiver := &objectstore.Archiver{Client: storeClient, Bucket: storeCfg.BucketDiagnostics}

	pipelineCfg, err := pipeline.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid pipeline config", "error", err)
		os.Exit(2)
	}
	trigger, err := pipeline.NewDevOpsClient(pipelineCfg)
	if err != nil {
		logger.Error("pipeline client init failed", "error", err)
		os.Exit(2)
	}

	notifier, err := buildNotifier(logger)
	if err != nil {
		logger.Error("invalid notification config", "error", err)
		os.Exit(2)
	}

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

	svcCfg, err := serviceConfigFromEnv()
	if err != nil {
		logger.Error("invalid service config", "error", err)
		os.Exit(2)
	}

	requestStore := repopg.NewRequestStore(db)
	reminderStore := repopg.NewReminderStore(db)
	// NDJSON export runs in the audit service; the portal only appends.
	auditAppender := repopg.NewAuditAppender(db, auditexport.NoopExporter{})

	svc := requests.New(logger, requestStore, reminderStore, auditAppender, cat, trigger, notifier, archiver, svcCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("portal"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"portal",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
					return db.PingContext(ctx)
				}),
			},
			httpserver.ReadinessCheck{
				Name: "objectstore",
				Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
					return objectstore.CheckBuckets(ctx, storeClient, storeCfg)
				}),
			},
		),
	)

	api := newPortalAPI(logger, svc, cat)
	api.register(mux)

	if authCfg.Mode == auth.ModeOIDC {
		if err := registerLoginRoutes(mux, authenticator, authCfg); err != nil {
			logger.Error("login route setup failed", "error", err)
			os.Exit(2)
		}
	}

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Authorize:     auth.MethodRoleAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return auditlog.InsertAuthDeny(auditCtx, db, "portal", event)
		},
		SkipPrefixes: []string{"/healthz", "/readyz", "/auth/"},
	}.Wrap(mux)

	reconcileInterval, err := env.Duration("PORTAL_RECONCILE_INTERVAL", 30*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	reminderInterval, err := env.Duration("PORTAL_REMINDER_INTERVAL", 15*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	expiryInterval, err := env.Duration("PORTAL_EXPIRY_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	startReconciler(ctx, logger, svc, reconcileInterval)
	startReminderSweep(ctx, logger, svc, reminderInterval)
	startExpirationSweep(ctx, logger, svc, expiryInterval)

	cfg := httpserver.Config{
		Service:         "portal",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "portal", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func serviceConfigFromEnv() (requests.Config, error) {
	reminderAfter, err := env.Duration("PORTAL_REMINDER_AFTER", 4*time.Hour)
	if err != nil {
		return requests.Config{}, err
	}
	reminderCooldown, err := env.Duration("PORTAL_REMINDER_COOLDOWN", 24*time.Hour)
	if err != nil {
		return requests.Config{}, err
	}
	warnWindow, err := env.Duration("PORTAL_EXPIRY_WARN_WINDOW", 72*time.Hour)
	if err != nil {
		return requests.Config{}, err
	}
	batch, err := env.Int("PORTAL_SWEEP_BATCH", 50)
	if err != nil {
		return requests.Config{}, err
	}
	return requests.Config{
		ReminderAfter:    reminderAfter,
		ReminderCooldown: reminderCooldown,
		ExpiryWarnWindow: warnWindow,
		SweepBatchSize:   batch,
		PortalBaseURL:    env.String("PORTAL_BASE_URL", ""),
		ApproverEmails:   splitCSV(env.String("PORTAL_APPROVER_EMAILS", "")),
	}, nil
}

// buildNotifier fans out to every configured channel. With nothing
// configured notifications silently no-op; the engine treats them as
// best-effort anyway.
func buildNotifier(logger *slog.Logger) (notify.Notifier, error) {
	var notifiers []notify.Notifier

	emailCfg, err := notify.EmailConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if emailCfg.Configured() {
		email, err := notify.NewEmailNotifier(emailCfg)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, email)
		logger.Info("email notifications enabled", "host", emailCfg.Host)
	}

	webhookCfg, err := notify.WebhookConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if webhookCfg.Configured() {
		webhook, err := notify.NewWebhookNotifier(webhookCfg)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, webhook)
		logger.Info("webhook notifications enabled")
	}

	if len(notifiers) == 0 {
		logger.Warn("no notification channel configured")
		return notify.Noop{}, nil
	}
	return notify.Multi{Notifiers: notifiers}, nil
}

func registerLoginRoutes(mux *http.ServeMux, authenticator auth.Authenticator, cfg auth.Config) error {
	oidc, ok := authenticator.(*auth.OIDCService)
	if !ok {
		return errors.New("oidc login routes require the oidc authenticator")
	}
	if err := cfg.ValidateForLogin(); err != nil {
		return err
	}
	login, err := oidc.LoginHandler()
	if err != nil {
		return err
	}
	callback, err := oidc.CallbackHandler()
	if err != nil {
		return err
	}
	mux.HandleFunc("GET /auth/login", login)
	mux.HandleFunc("GET /auth/callback", callback)
	mux.HandleFunc("POST /auth/logout", oidc.LogoutHandler())
	mux.HandleFunc("GET /auth/session", oidc.SessionHandler())
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
