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

	"github.com/animus-labs/workflow-helper/internal/platform/auth"
	"github.com/animus-labs/workflow-helper/internal/platform/env"
	"github.com/animus-labs/workflow-helper/internal/platform/httpserver"
	"github.com/animus-labs/workflow-helper/internal/platform/objectstore"
	"github.com/animus-labs/workflow-helper/internal/platform/openapi"
	"github.com/animus-labs/workflow-helper/internal/platform/postgres"
	"github.com/animus-labs/workflow-helper/internal/repo"
	"github.com/animus-labs/workflow-helper/internal/repo/memory"
	repopg "github.com/animus-labs/workflow-helper/internal/repo/postgres"
	"github.com/animus-labs/workflow-helper/internal/service/approvals"
	"github.com/animus-labs/workflow-helper/internal/service/links"
	"github.com/animus-labs/workflow-helper/internal/service/runs"
	"github.com/animus-labs/workflow-helper/internal/webhook"
)

const serviceName = "workflow-api"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applied, err := env.LoadFile(env.String("WF_CONFIG_FILE", ""))
	if err != nil {
		logger.Error("invalid config file", "error", err)
		os.Exit(2)
	}
	if len(applied) > 0 {
		logger.Info("config file applied", "keys", applied)
	}

	httpCfg, err := httpserver.ConfigFromEnv(serviceName)
	if err != nil {
		logger.Error("invalid http config", "error", err)
		os.Exit(2)
	}
	webhookCfg, err := webhook.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid webhook config", "error", err)
		os.Exit(2)
	}
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	assetCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}

	var store repo.Store
	switch backend := strings.ToLower(strings.TrimSpace(env.String("WF_STORE", "postgres"))); backend {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.NewStore()
	case "postgres":
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		db, versions, err := postgres.Connect(ctx, dbCfg, repopg.Migrate)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if len(versions) > 0 {
			logger.Info("database migrated", "versions", versions)
		}
		store = repopg.NewStore(db)
	default:
		logger.Error("invalid env", "error", "WF_STORE must be one of: postgres, memory", "value", backend)
		os.Exit(2)
	}

	checks := []httpserver.ReadinessCheck{{Name: "store", Check: store.Ping}}

	var assets assetOpener
	if assetCfg.Enabled() {
		client, err := objectstore.NewMinIOClient(assetCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		bucket := objectstore.NewAssets(client, assetCfg.Bucket)
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = bucket.CheckBucket(startupCtx)
		cancel()
		if err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		assets = bucket
		checks = append(checks, httpserver.ReadinessCheck{Name: "minio", Check: bucket.CheckBucket})
	}

	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("openapi document invalid", "error", err)
		os.Exit(1)
	}
	specHandler, err := openapi.Handler(doc)
	if err != nil {
		logger.Error("openapi document invalid", "error", err)
		os.Exit(1)
	}

	if webhookCfg.ApprovalURL == "" {
		logger.Warn("approval webhook not configured; decisions will be recorded as failed deliveries")
	}
	if webhookCfg.LinkURL == "" {
		logger.Warn("link webhook not configured; submissions will be recorded as failed deliveries")
	}
	dispatcher := webhook.NewDispatcher(webhookCfg.HTTPClient(ctx), webhookCfg.Timeout, logger)

	api := newWorkflowAPI(
		logger,
		runs.New(store),
		approvals.New(store, dispatcher, webhookCfg.ApprovalURL, approvals.WithLogger(logger)),
		links.New(store, dispatcher, webhookCfg.LinkURL, links.WithLogger(logger)),
		assets,
	)
	mux := newRouter(api, specHandler, httpserver.ReadyzWithChecks(serviceName, 750*time.Millisecond, checks...))

	var authenticator auth.Authenticator
	if authCfg.Mode == auth.ModeOIDC {
		startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		oidcAuth, err := auth.NewOIDCAuthenticator(startupCtx, authCfg)
		cancel()
		if err != nil {
			logger.Error("oidc provider unavailable", "error", err)
			os.Exit(1)
		}
		authenticator = oidcAuth
	}
	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPaths:     []string{"/healthz", "/readyz", "/openapi.json"},
	}.Wrap(mux)

	if err := httpserver.Run(ctx, logger, httpCfg, httpserver.Wrap(logger, handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newRouter(api *workflowAPI, spec http.HandlerFunc, readyz http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", readyz)
	mux.HandleFunc("GET /openapi.json", spec)
	api.register(mux)
	return mux
}
