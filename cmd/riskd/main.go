package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/internal/adapters/clickhouse"
	"github.com/selivandex/riskpulse/internal/adapters/config"
	"github.com/selivandex/riskpulse/internal/adapters/database"
	redisAdapter "github.com/selivandex/riskpulse/internal/adapters/redis"
	"github.com/selivandex/riskpulse/internal/health"
	"github.com/selivandex/riskpulse/internal/marketdata"
	"github.com/selivandex/riskpulse/internal/notify"
	"github.com/selivandex/riskpulse/internal/risk"
	"github.com/selivandex/riskpulse/internal/snapshots"
	"github.com/selivandex/riskpulse/internal/workers"
	"github.com/selivandex/riskpulse/pkg/logger"
	"github.com/selivandex/riskpulse/pkg/worker"
	_ "github.com/lib/pq"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Run application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Systemic risk service starting...")

	// Initialize Postgres and run migrations
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize ClickHouse market store
	ch, err := clickhouse.New(&cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	defer ch.Close()

	marketRepo := clickhouse.NewRepository(ch.DB())
	if err := marketRepo.EnsureSchema(ctx); err != nil {
		return err
	}

	// Initialize Redis cache and lock manager
	cache, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()

	// Notification bus with a logging subscriber
	bus := notify.NewBus(64, logger.Log.Named("notify"))
	defer bus.Close()
	bus.Subscribe(notify.LogSubscriber(logger.Log.Named("notify")))

	// Market data provider with hot/stale cache tiers
	provider := marketdata.NewCachedProvider(
		marketdata.NewStoreProvider(marketRepo),
		cache,
		cfg.Cache.HotTTL,
		cfg.Cache.SnapshotTTL,
	)

	// Risk engine
	snapshotRepo := snapshots.NewRepository(db)
	engine := risk.NewEngine(cfg, provider, cache, snapshotRepo, bus, logger.Log.Named("engine"))

	// Health probes
	healthServer := health.NewServer(cfg.Health.Port, db, ch, cache)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server error", zap.Error(err))
		}
	}()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := healthServer.Stop(stopCtx); err != nil {
			logger.Warn("health server stop failed", zap.Error(err))
		}
	}()

	// Background refresh worker
	group := worker.NewWorkerGroup(ctx)
	group.Add(
		workers.NewRiskWorker(engine, cache, cfg.Worker.RefreshInterval),
		cfg.Worker.RefreshInterval,
	)
	group.Start()
	defer group.Stop(cfg.Worker.StopTimeout)

	healthServer.SetReady(true)

	// Keep service running
	<-ctx.Done()
	logger.Info("shutting down gracefully...")
	healthServer.SetReady(false)

	return nil
}

func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
