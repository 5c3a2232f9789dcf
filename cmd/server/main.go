// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	_ "barcode-service/docs"
	"barcode-service/internal/config"
	"barcode-service/internal/database"
	"barcode-service/internal/events"
	"barcode-service/internal/repository"
	"barcode-service/internal/routes"
	"barcode-service/internal/scanner"
	"barcode-service/internal/service"
	"barcode-service/internal/utils"
)

// configPathEnv overrides the config file search
const configPathEnv = "BARCODE_SERVICE_CONFIG"

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	router   *routes.Router
	database *database.DB
	registry *prometheus.Registry

	bus *events.Bus

	// Services
	scannerService   *service.ScannerService
	discoveryService *service.DiscoveryService
	journal          *service.ScanJournal

	// Repositories
	scanRepo repository.ScanRepository
}

// @title Barcode Service API
// @version 1.0.0
// @description Barcode scanner gateway: live scans, scanner health, scan history and port discovery

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load(os.Getenv(configPathEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "barcode-service")
	redacted := *cfg
	redacted.Database.Password = "***"
	serviceLogger.LogServiceStart(cfg.App.Version, redacted)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase sets up the journal database and runs migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, scan journal will not persist barcodes")
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	if app.config.Database.AutoMigrate {
		migrator := database.NewMigrator(db, app.logger, &app.config.Database)
		if err := migrator.Migrate(); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() {
	if app.database == nil {
		return
	}
	app.scanRepo = repository.NewScanRepository(app.database, app.logger)
	app.logger.Info("Repositories initialized successfully")
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	var scannerMetrics *scanner.Metrics
	if app.config.Metrics.Enabled {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		var err error
		scannerMetrics, err = scanner.NewMetrics(app.config.Metrics.Namespace, app.registry)
		if err != nil {
			return fmt.Errorf("failed to register scanner metrics: %w", err)
		}
	}

	app.bus = events.NewBus(1000, app.logger)
	app.journal = service.NewScanJournal(app.scanRepo, app.config.Journal, app.logger)

	app.scannerService = service.NewScannerService(
		app.config,
		nil,
		app.bus,
		app.journal,
		scannerMetrics,
		app.logger,
	)

	app.discoveryService = service.NewDiscoveryService(app.config, app.logger)

	app.logger.Info("Services initialized successfully",
		zap.Int("scanners", len(app.config.Scanners)),
		zap.Bool("journal_enabled", app.journal.Enabled()),
		zap.Bool("metrics_enabled", app.config.Metrics.Enabled),
	)
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.scannerService,
		app.journal,
		app.discoveryService,
		app.bus,
		app.registry,
	)

	handler, err := app.router.SetupRouter()
	if err != nil {
		return err
	}

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      handler,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)

	return nil
}

// Start runs the background services and the HTTP server until a shutdown signal arrives
func (app *Application) Start() error {
	go app.bus.Start()
	app.journal.Start()

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.scannerService.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start scanners: %w", err)
	}

	go func() {
		defer utils.LogPanic(app.logger)

		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.waitForShutdown()

	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown stops the server first, then the scanners, so the journal
// flushes every barcode read before the database closes
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "barcode-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.router.Close()
	app.scannerService.Stop()
	app.journal.Stop()
	app.bus.Stop()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
