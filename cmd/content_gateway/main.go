package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edupress/content_gateway/internal/access"
	"github.com/edupress/content_gateway/internal/catalog"
	"github.com/edupress/content_gateway/internal/cleanup"
	"github.com/edupress/content_gateway/internal/config"
	"github.com/edupress/content_gateway/internal/device"
	"github.com/edupress/content_gateway/internal/http/rest"
	"github.com/edupress/content_gateway/internal/logctx"
	"github.com/edupress/content_gateway/internal/materialize"
	"github.com/edupress/content_gateway/internal/platform"
	"github.com/edupress/content_gateway/internal/session"
	"github.com/edupress/content_gateway/internal/storage"
	"github.com/edupress/content_gateway/internal/storage/sqlite"
	"github.com/edupress/content_gateway/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("content gateway starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if cfg.Telemetry.Enabled {
		if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
			logger.Error("failed to start runtime instrumentation", "err", err)
		}
	}

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedAssetRepository(database, tel)

	// =========================================================================
	// Build Core
	client := platform.NewInstrumentedClient(
		platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformTimeout), tel)
	sessions := session.NewMemoryStore()
	resolver := access.NewResolver(client, sessions, cfg.EntitlementTTL, tel)
	assetCatalog := catalog.NewCatalog(client, sessions)
	orchestrator := access.NewOrchestrator(resolver, assetCatalog)

	materializer := materialize.NewMaterializer(
		cfg.DownloadDir,
		cfg.MaxParallel,
		client,
		device.FSPermissionChecker{},
		device.NoopSharer{},
		sessions,
		repo,
		tel,
	)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, cfg, orchestrator, materializer, client, sessions, tel)

	go func() {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("serving content access",
		"platform_base_url", cfg.PlatformBaseURL,
		"download_dir", cfg.DownloadDir,
		"entitlement_ttl", cfg.EntitlementTTL.String(),
		"retention", cfg.KeepDownloadedFor.String(),
	)

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, repo, cfg, tel)

	// =========================================================================
	// Wait for shutdown
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// setupServer prepares the handlers and middlewares to create the http rest server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	orchestrator *access.Orchestrator,
	materializer *materialize.Materializer,
	client rest.URLBuilder,
	sessions session.Store,
	tel *telemetry.Telemetry,
) *http.Server {
	handler := rest.NewContentHandler(orchestrator, materializer, client, sessions)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, repo storage.AssetRepository, cfg *config.Config, tel *telemetry.Telemetry) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				if err := cleanup.DeleteExpiredAssets(ctx, repo, cfg.KeepDownloadedFor); err != nil {
					tel.RecordSystemError("cleanup", "delete_expired_assets")
					logger.Error("failed to delete expired materialized assets", "err", err)
				}
			}
		}
	}()
}
