package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arpan-banerjee/fno-dashboard/internal/broadcast"
	"github.com/arpan-banerjee/fno-dashboard/internal/config"
	"github.com/arpan-banerjee/fno-dashboard/internal/database"
	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/enrich"
	"github.com/arpan-banerjee/fno-dashboard/internal/jobs"
	"github.com/arpan-banerjee/fno-dashboard/internal/poller"
	"github.com/arpan-banerjee/fno-dashboard/internal/pricing"
	"github.com/arpan-banerjee/fno-dashboard/internal/server"
	"github.com/arpan-banerjee/fno-dashboard/internal/snapshots"
	"github.com/arpan-banerjee/fno-dashboard/internal/upstream"
	"github.com/arpan-banerjee/fno-dashboard/internal/upstream/nse"
	"github.com/arpan-banerjee/fno-dashboard/pkg/logger"
)

const archiveTTL = 24 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.PrettyLogs,
	})

	log.Info().Msg("Starting FnO dashboard")

	// Initialize snapshot database
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}
	db, err := database.New(database.Config{Path: cfg.DatabasePath, Name: "snapshots"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	archive, err := snapshots.NewArchive(db, archiveTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot archive")
	}

	// Core services
	engine := pricing.New()
	cache := snapshots.NewCache[[]domain.RawStrike](snapshots.DefaultDepth, snapshots.DefaultTTL)
	hub := broadcast.NewHub(log)
	pipeline := enrich.New(engine, cfg.RiskFreeRate, log)

	// Upstream gateway; mock mode skips the exchange entirely
	var gateway upstream.Gateway
	if cfg.MockMode {
		log.Info().Msg("Mock mode enabled, serving synthetic chains")
		gateway = upstream.NewSynthetic()
	} else {
		nseClient := nse.New(log)
		defer nseClient.Close()
		gateway = nseClient
	}

	pollers := poller.New(poller.Config{
		Gateway:      gateway,
		Pipeline:     pipeline,
		Engine:       engine,
		Cache:        cache,
		Archive:      archive,
		Hub:          hub,
		RiskFreeRate: cfg.RiskFreeRate,
		Log:          log,
	})
	defer pollers.Shutdown()

	// Background maintenance jobs
	sched := jobs.New(log)
	if err := sched.AddJob("0 0 * * * *", snapshots.NewCacheCleanupJob(cache, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}
	if err := sched.AddJob("0 30 3 * * *", snapshots.NewArchivePruneJob(archive, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register archive prune job")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		Hub:         hub,
		Pollers:     pollers,
		Cache:       cache,
		Archive:     archive,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
