package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"github.com/dhanvin/tradebook/internal/clients/broker"
	"github.com/dhanvin/tradebook/internal/config"
	"github.com/dhanvin/tradebook/internal/database"
	"github.com/dhanvin/tradebook/internal/events"
	"github.com/dhanvin/tradebook/internal/modules/analytics"
	"github.com/dhanvin/tradebook/internal/modules/basket"
	"github.com/dhanvin/tradebook/internal/modules/instruments"
	"github.com/dhanvin/tradebook/internal/modules/ledger"
	syncmod "github.com/dhanvin/tradebook/internal/modules/sync"
	"github.com/dhanvin/tradebook/internal/scheduler"
	"github.com/dhanvin/tradebook/internal/server"
	"github.com/dhanvin/tradebook/pkg/logger"
)

func main() {
	// Load configuration first so the log level is honored
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info", Pretty: true})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Tradebook")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Lot sizes for basket aggregation
	lots := instruments.New(log)
	if cfg.InstrumentsPath != "" {
		if err := lots.LoadCSV(cfg.InstrumentsPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.InstrumentsPath).Msg("Instrument dump not loaded, lot sizes default to 1")
		}
	}

	eventBus := events.NewManager(log)

	// A single lock serializes sync runs and basket conversions so the
	// two never interleave their read-reconcile-write cycles.
	runLock := &gosync.Mutex{}

	ledgerRepo := ledger.NewRepository(db.Conn(), log)
	engine := ledger.NewEngine(log)
	guard := ledger.NewDedupGuard(log)

	basketService := basket.NewService(db.Conn(), lots, eventBus, runLock, log)

	brokerClient := broker.NewClient(cfg.BrokerBaseURL, cfg.BrokerAPIKey, log)
	syncService := syncmod.NewService(brokerClient, ledgerRepo, engine, guard, eventBus, runLock, log)

	analyticsService := analytics.NewService(ledgerRepo, log)
	equityTracker := analytics.NewEquityTracker(db.Conn(), log)

	// Initialize scheduler
	sched := scheduler.New(log)
	marketHours := scheduler.NewMarketHoursService(log)

	syncJob := syncmod.NewJob(syncService, marketHours, log)
	if err := sched.AddJob(cfg.SyncSchedule, syncJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register order sync job")
	}

	equityJob := analytics.NewSnapshotJob(ledgerRepo, equityTracker, log)
	if err := sched.AddJob("0 45 15 * * MON-FRI", equityJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register equity snapshot job")
	}

	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		DB:        db,
		Ledger:    ledger.NewHandler(ledgerRepo, log),
		Baskets:   basket.NewHandler(basketService, log),
		Sync:      syncmod.NewHandler(syncService, log),
		Analytics: analytics.NewHandler(analyticsService, equityTracker),
		DevMode:   cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
