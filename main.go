package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/api"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/cache"
	"bybit-trading-bot/internal/coordinator"
	"bybit-trading-bot/internal/database"
	"bybit-trading-bot/internal/feed"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal("failed to load configuration", "error", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		Component:  "main",
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized", "level", cfg.LoggingConfig.Level)

	// Load venue credentials from Vault when enabled; environment
	// variables already populated the config otherwise.
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal("failed to create vault client", "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		cred, err := vaultClient.LoadCredential(ctx)
		cancel()
		if err != nil {
			logger.Fatal("failed to load venue credential from vault", "error", err)
		}
		cfg.VenueConfig.APIKey = cred.APIKey
		cfg.VenueConfig.SecretKey = cred.SecretKey
		cfg.VenueConfig.Testnet = cred.IsTestnet
		logger.Info("venue credential loaded from vault")
	}

	// Venue client
	client := bybit.NewClient(cfg.VenueConfig.APIKey, cfg.VenueConfig.SecretKey,
		cfg.VenueConfig.Testnet, cfg.VenueConfig.RecvWindow)
	if cfg.VenueConfig.BaseURL != "" {
		client.SetBaseURL(cfg.VenueConfig.BaseURL)
	}
	logger.Info("venue client initialized", "testnet", cfg.VenueConfig.Testnet)

	// Rolling operational state
	events := coordinator.NewEventLog(cfg.CoordinatorConfig.EventLogSize, 5*time.Second)
	errRing := coordinator.NewErrorRing(cfg.CoordinatorConfig.ErrorRingSize)

	// Optional Redis-backed dedupe persistence
	var dedupe coordinator.DedupeStore
	var dedupeStore *cache.DedupeStore
	if cfg.RedisConfig.Enabled {
		dedupeStore, err = cache.NewDedupeStore(cfg.RedisConfig, logger)
		if err != nil {
			logger.Fatal("failed to create dedupe store", "error", err)
		}
		dedupe = dedupeStore
	}

	// Optional PostgreSQL persistence
	var repo *database.Repository
	var recorder coordinator.Recorder
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("database migrations failed", "error", err)
		}
		cancel()
		repo = database.NewRepository(db)
		recorder = repo
	}

	// The sizer and feed read live operator settings; the coordinator is
	// constructed below, so both close over the variable.
	var coord *coordinator.Coordinator
	riskMode := func() string {
		if coord != nil {
			return coord.GetSettings().RiskMode
		}
		return cfg.RiskConfig.Mode
	}
	symbols := func() []string {
		if coord != nil {
			return coord.GetSettings().Symbols
		}
		return cfg.CoordinatorConfig.Symbols
	}

	sizer := coordinator.SelectSizer(cfg.RiskConfig, cfg.VenueConfig.Testnet, riskMode)
	engine := coordinator.NewEngine(cfg.GatesConfig,
		time.Duration(cfg.CoordinatorConfig.CooldownAfterLossMin)*time.Minute)
	planner := coordinator.NewPlanner(cfg.TrailingConfig)
	protSync := coordinator.NewSynchronizer(client, planner,
		time.Duration(cfg.CoordinatorConfig.ProtectionSyncSeconds)*time.Second, logger)
	bias := coordinator.NewBiasEnforcer(client, cfg.CoordinatorConfig.ReferenceSymbol,
		30*time.Second, events, logger)

	dispatchLogger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "dispatch").Logger()
	dispatcher := coordinator.NewDispatcher(client, sizer,
		time.Duration(cfg.CoordinatorConfig.IntentTTLSeconds)*time.Second, riskMode,
		cfg.GatesConfig.StrongTrendADX, cfg.GatesConfig.AlignmentCount,
		events, errRing, recorder, dedupe, dispatchLogger)

	// Strategy feed
	feedAdapter := feed.New(cfg.FeedConfig, symbols, logger)

	coord = coordinator.New(cfg, client, feedAdapter, engine, dispatcher,
		protSync, bias, events, errRing, recorder, logger.WithComponent("COORDINATOR"))

	feedAdapter.Start()
	if err := coord.Start(); err != nil {
		logger.Fatal("failed to start coordinator", "error", err)
	}

	// Operator API
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg, coord, repo, logger)
		server.Start()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutdown signal received", "signal", sig.String())

	if err := coord.Stop(); err != nil {
		logger.Warn("coordinator stop failed", "error", err)
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("api server shutdown failed", "error", err)
		}
		cancel()
	}

	if db != nil {
		db.Close()
	}
	if dedupeStore != nil {
		if err := dedupeStore.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
