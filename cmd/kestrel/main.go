// Kestrel - Mule-ring detection for transfer batches.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// Restrict CORS to specific origins when configured
	if envOrigins := os.Getenv("KESTREL_CORS_ORIGINS"); envOrigins != "" {
		for _, origin := range strings.Split(envOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, origin)
			}
		}
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Exclusion Engine
	exclusions, err := detect.NewExclusionEngine()
	if err != nil {
		slog.Error("failed to initialize exclusion engine", "error", err)
		os.Exit(1)
	}

	// Load exclusion rules from database (no hardcoded defaults - configure via API)
	if err := loadExclusionRulesFromDatabase(ctx, repo, exclusions); err != nil {
		slog.Error("failed to load exclusion rules", "error", err)
		os.Exit(1)
	}
	slog.Info("exclusion engine initialized", "rules_count", exclusions.RulesCount())

	// Initialize Analyzer
	analyzer := engine.New(cfg.Engine, exclusions)
	slog.Info("analyzer initialized",
		"cycle_bounds", fmt.Sprintf("%d-%d", cfg.Engine.MinCycleLength, cfg.Engine.MaxCycleLength),
		"smurfing_threshold", cfg.Engine.SmurfingThreshold,
		"shell_chain_bounds", fmt.Sprintf("%d-%d", cfg.Engine.ShellMinChain, cfg.Engine.ShellMaxChain),
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, analyzer)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, analyzer, exclusions, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for exclusion rules that apply to all tenants.
const GlobalTenantID = "*"

// loadExclusionRulesFromDatabase loads exclusion rules into the engine.
// All rules must be configured via POST /exclusions API - no hardcoded defaults.
func loadExclusionRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *detect.ExclusionEngine) error {
	dbRules, err := repo.ListExclusionRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list exclusion rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading exclusion rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no exclusion rules in database - configure via POST /exclusions API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("               KESTREL")
	fmt.Println("       Mule-Ring Detection Engine")
	fmt.Println("       Every batch, every ring.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyses              - Analyze a transfer batch")
	fmt.Println("    GET  /analyses              - List analyses")
	fmt.Println("    GET  /analyses/{id}         - Get analysis by ID")
	fmt.Println("    GET  /analyses/{id}/rings   - List fraud rings of an analysis")
	fmt.Println("    GET  /analyses/{id}/report  - Suspicious accounts as CSV")
	fmt.Println("    GET  /exclusions            - List exclusion rules")
	fmt.Println("    POST /exclusions            - Create an exclusion rule")
	fmt.Println("    POST /exclusions/reload     - Hot-reload exclusion rules")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
