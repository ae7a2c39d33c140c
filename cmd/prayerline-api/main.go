// Package main is the entry point for the prayerline API server.
// Sessions run against the durable store when a database is reachable and
// fall back to the in-memory store in auto mode.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jmylchreest/prayerline/internal/config"
	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/crypto"
	"github.com/jmylchreest/prayerline/internal/database"
	"github.com/jmylchreest/prayerline/internal/http/handlers"
	"github.com/jmylchreest/prayerline/internal/http/mw"
	"github.com/jmylchreest/prayerline/internal/http/routes"
	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/repository"
	"github.com/jmylchreest/prayerline/internal/service"
	"github.com/jmylchreest/prayerline/internal/shutdown"
	"github.com/jmylchreest/prayerline/internal/version"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting prayerline-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, repos, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err, "store_mode", cfg.StoreMode)
		os.Exit(1)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}
	logger.Info("session store ready", "mode", repos.Mode)

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	services.Notify.Start(ctx)

	// Price overrides from object storage
	if services.Storage.IsEnabled() {
		constants.InitOfferLoader(config.S3LoaderConfig{
			S3Client: services.Storage.Getter(),
			Bucket:   services.Storage.Bucket(),
			Key:      "config/offers.json",
			Logger:   logger,
		})
		logger.Info("offer overrides enabled", "bucket", services.Storage.Bucket())
	}

	idle := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		Logger:       logger,
		ExcludePaths: []string{"/healthz", "/readyz", "/livez"},
		BusyChecks: []shutdown.BusyCheck{
			func() bool { return !services.Notify.Idle() },
		},
	})
	idle.Start()

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(idle.Middleware)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	router.Use(mw.Cache(mw.DefaultCacheConfig()))
	router.Use(mw.Timeout(mw.DefaultTimeoutConfig()))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-API-Version"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.RequestSize(constants.MaxRequestBodyBytes))
	router.Use(mw.RateLimitByIP(constants.GlobalIPRateLimitPerMinute))
	router.Use(mw.RateLimitBySession(mw.DefaultRateLimitConfig()))
	router.Use(middleware.Throttle(constants.MaxConcurrentRequests))

	humaConfig := routes.NewHumaConfig(cfg.BaseURL)
	if !cfg.DocsEnabled {
		humaConfig.DocsPath = ""
		humaConfig.OpenAPIPath = ""
		humaConfig.SchemasPath = ""
	}
	api := humachi.New(router, humaConfig)
	api.UseMiddleware(mw.AdminAuth(api, cfg.AdminAPIKey, logger))
	if cfg.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY not set - admin endpoints will reject every request")
	}

	// A nil *sql.DB must not become a non-nil interface.
	var pinger handlers.DBPinger
	if db != nil {
		pinger = db
	}
	h := routes.NewHandlers(services, cfg.PaymentCurrency, pinger, logger)
	routes.Register(api, h)
	routes.RegisterRaw(router, h)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idle.Done():
			logger.Info("shutting down idle server")
		}

		idle.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		// Drain queued deliveries after the last request has finished.
		services.Notify.Stop()
		cancel()
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "store", repos.Mode)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// openStore picks the session store for the configured mode. Auto mode falls
// back to memory when the database cannot be opened or migrated.
func openStore(cfg *config.Config, logger *slog.Logger) (*sql.DB, *repository.Repositories, error) {
	mode := cfg.EffectiveStoreMode()
	if mode == config.StoreModeEphemeral {
		if cfg.StoreMode == config.StoreModeAuto {
			logger.Warn("JWT_SECRET and ENCRYPTION_KEY unset, using ephemeral sessions")
		}
		return nil, repository.NewMemoryRepositories(cfg.SessionTTL), nil
	}

	db, repos, err := openDurable(cfg, logger)
	if err == nil {
		return db, repos, nil
	}
	if mode == config.StoreModeAuto {
		logger.Warn("durable store unavailable, using ephemeral sessions", "error", err, "session_ttl", cfg.SessionTTL)
		return nil, repository.NewMemoryRepositories(cfg.SessionTTL), nil
	}
	return nil, nil, err
}

func openDurable(cfg *config.Config, logger *slog.Logger) (*sql.DB, *repository.Repositories, error) {
	var enc *crypto.Encryptor
	if len(cfg.EncryptionKey) > 0 {
		e, err := crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("encryption key: %w", err)
		}
		enc = e
	}

	db, err := database.Open(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := database.Migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, repository.NewRepositories(db, enc), nil
}
