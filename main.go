package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/proxylink-dev/proxylink/pkg/adapters/backend"
	"github.com/proxylink-dev/proxylink/pkg/auth"
	"github.com/proxylink-dev/proxylink/pkg/config"
	"github.com/proxylink-dev/proxylink/pkg/database"
	"github.com/proxylink-dev/proxylink/pkg/handlers"
	"github.com/proxylink-dev/proxylink/pkg/logging"
	"github.com/proxylink-dev/proxylink/pkg/middleware"
	"github.com/proxylink-dev/proxylink/pkg/repositories"
	"github.com/proxylink-dev/proxylink/pkg/retry"
	"github.com/proxylink-dev/proxylink/pkg/services"
	"github.com/proxylink-dev/proxylink/pkg/vault"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.Int("vault_key_generations", len(cfg.Vault.Keys)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	migrationDB, err := database.OpenForMigrations(cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open database for migrations", zap.Error(err))
	}
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		return database.RunMigrations(migrationDB, logger)
	})
	if err != nil {
		logger.Fatal("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}
	_ = migrationDB.Close()

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("url", logging.SanitizeConnectionString(cfg.Database.URL())),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
	defer db.Close()

	v, err := vault.New(cfg.Vault.Keys, cfg.Vault.ActiveKeyID)
	if err != nil {
		logger.Fatal("Failed to initialize vault", zap.Error(err))
	}

	connectorRepo := repositories.NewConnectorRepository(db)
	linkRepo := repositories.NewLinkRepository(db)
	accessLogRepo := repositories.NewAccessLogRepository(db)

	registry := backend.NewRegistry(backend.Limits{
		Timeout:          time.Duration(cfg.Proxy.DispatchTimeoutSeconds) * time.Second,
		MaxRows:          cfg.Proxy.MaxResultRows,
		MaxResponseBytes: cfg.Proxy.MaxResponseBytes,
	})

	connectorService := services.NewConnectorService(connectorRepo, v, registry, logger)
	linkService := services.NewLinkService(linkRepo, connectorRepo, logger)
	accessService := services.NewAccessService(logger)
	auditService := services.NewAuditService(accessLogRepo, connectorRepo, logger)
	dispatcher := services.NewDispatchService(connectorRepo, linkService, accessService, v, registry, auditService, logger)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.EnableVerification)
	authMiddleware := auth.NewMiddleware(verifier, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewConnectorsHandler(connectorService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewLinksHandler(linkService, cfg.BaseURL, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewProxyHandler(dispatcher, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAccessLogHandler(auditService, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting proxylink",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// newLogger builds a production logger everywhere except local, where
// the development config's console output is friendlier.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
