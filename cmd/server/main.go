// @title           Contract Factory API
// @version         0.1.0
// @description     Off-chain contract factory registry: create contracts, list them per creator and globally, and query each record's name, symbol and owner.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                        Authorization
// @description                 "Caller token: 'Bearer {jwt}'. The token subject is the calling account address."
//
// @tag.name         Contracts
// @tag.description  Contract creation, listings and record accessors.
//
// @tag.name         Events
// @tag.description  The ContractCreated log.
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints. Prometheus metrics are served on a separate port (telemetry.metrics.prometheus_port) at GET /metrics.

// Package main is the entry point for the contract factory server binary.
// It dispatches three subcommands (serve, migrate, version) via a switch on
// os.Args. The serve command runs migrations on startup when the postgres
// driver is selected.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contract-factory/contract-factory/internal/api"
	"github.com/contract-factory/contract-factory/internal/api/contracts"
	"github.com/contract-factory/contract-factory/internal/auth"
	"github.com/contract-factory/contract-factory/internal/config"
	"github.com/contract-factory/contract-factory/internal/db"
	"github.com/contract-factory/contract-factory/internal/db/repositories"
	"github.com/contract-factory/contract-factory/internal/events"
	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/factory/memory"
	"github.com/contract-factory/contract-factory/internal/jobs"
	"github.com/contract-factory/contract-factory/internal/metadata"
	"github.com/contract-factory/contract-factory/internal/safego"
	"github.com/contract-factory/contract-factory/internal/storage"
	"github.com/contract-factory/contract-factory/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/contract-factory/contract-factory/internal/storage/azure"
	_ "github.com/contract-factory/contract-factory/internal/storage/gcs"
	_ "github.com/contract-factory/contract-factory/internal/storage/local"
	_ "github.com/contract-factory/contract-factory/internal/storage/s3"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("Contract Factory v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

// openStore returns the configured contract store and, for the postgres
// driver, the migrated connection pool. The pool is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.Config) (factory.Store, *sqlx.DB, error) {
	if cfg.Database.Driver != "postgres" {
		slog.Warn("using in-memory contract store; contracts are lost on restart")
		return memory.New(), nil, nil
	}

	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port, "name", cfg.Database.Name, "ssl_mode", cfg.Database.SSLMode)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database.DB, "up"); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database.DB); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	return repositories.NewContractRepository(database), database, nil
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails outside dev mode when FACTORY_JWT_SECRET is unset
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path := cfg.File(); path != "" {
		err := config.Watch(ctx, path, func(next *config.Config) {
			telemetry.SetLogLevel(next.Logging.Level)
			slog.Info("configuration reloaded", "log_level", next.Logging.Level)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		}
	}

	store, database, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	var sqlDB *sql.DB
	if database != nil {
		defer database.Close()
		sqlDB = database.DB
		telemetry.StartDBStatsCollector(ctx, sqlDB)
	}

	if cfg.Factory.CacheEnabled {
		store = factory.NewCachedStore(store, cfg.Factory.CacheTTL)
	}

	// Document storage and the publisher that fills it
	var (
		docStore  storage.Storage
		publisher *metadata.Publisher
		documents contracts.DocumentLoader
	)
	if cfg.Storage.Enabled {
		docStore, err = storage.NewStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage backend: %w", err)
		}
		if err := storage.Ensure(ctx, docStore); err != nil {
			return fmt.Errorf("failed to prepare storage backend: %w", err)
		}
		publisher = metadata.NewPublisher(docStore, cfg.Factory.FactoryAddress())
		documents = publisher
		slog.Info("metadata storage enabled", "backend", cfg.Storage.DefaultBackend)
	}

	// Event delivery
	shippers := &events.MultiShipper{}
	if cfg.Events.Enabled {
		shippers, err = events.NewMultiShipper(cfg.Events.Shippers)
		if err != nil {
			return fmt.Errorf("failed to configure event shippers: %w", err)
		}
	}
	if publisher != nil {
		shippers.Add("metadata", publisher)
	}

	var opts []factory.Option
	var dispatcher *events.Dispatcher
	if shippers.Len() > 0 {
		dispatcher = events.NewDispatcher(shippers, 0)
		opts = append(opts, factory.WithEventSink(dispatcher))
		slog.Info("event delivery enabled", "shippers", shippers.Len())
	}

	registry := factory.NewRegistry(cfg.Factory.FactoryAddress(), store, opts...)
	count, err := registry.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count contracts: %w", err)
	}
	telemetry.RegistryContracts.Set(float64(count))
	slog.Info("registry ready", "factory", registry.Address().Hex(), "contracts", count)

	var background safego.Group
	var syncJob *jobs.MetadataSyncJob
	if publisher != nil {
		syncJob = jobs.NewMetadataSyncJob(store, publisher, cfg.Jobs.MetadataSyncInterval, cfg.Jobs.MetadataSyncConcurrency)
		background.Go(func() { syncJob.Start(ctx) })
	}

	// Prometheus metrics on a dedicated port so the scrape path stays off the public listener
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		safego.Go(func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	api.Version = version
	router, bgServices := api.NewRouter(cfg, api.Dependencies{
		Registry:  registry,
		DB:        sqlDB,
		Storage:   docStore,
		Documents: documents,
	})

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	safego.Go(func() {
		slog.Info("starting server", "addr", server.Addr, "tls", cfg.Security.TLS.Enabled, "version", version)
		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	})

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-serverErr:
		stop()
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx) //nolint:errcheck
	}
	bgServices.Shutdown()

	// ctx is already cancelled, which also ends the DB stats collector
	if syncJob != nil {
		syncJob.Stop()
	}
	background.Wait()

	// Dispatcher.Close drains queued events before closing the shippers
	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			slog.Warn("event shippers closed with error", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations require database.driver=postgres (got %q)", cfg.Database.Driver)
	}

	database, err := db.Connect(context.Background(), &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}
