// Command distributor runs the reward distribution engine: it ingests
// token Transfer events into the transfer log and periodically computes
// the share set for the open distribution.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/0xsend/sendapp-sub007/internal/admin"
	"github.com/0xsend/sendapp-sub007/internal/chain"
	"github.com/0xsend/sendapp-sub007/internal/distributor"
	"github.com/0xsend/sendapp-sub007/internal/ingest"
	"github.com/0xsend/sendapp-sub007/internal/leader"
	"github.com/0xsend/sendapp-sub007/internal/notify"
	"github.com/0xsend/sendapp-sub007/internal/snapshot"
	"github.com/0xsend/sendapp-sub007/internal/storage"
)

func main() {
	var (
		configPath = pflag.String("config", envOrDefault("DISTRIBUTOR_CONFIG", ""), "Path to YAML config file")
		rpcURL     = pflag.String("rpc-url", envOrDefault("RPC_URL", ""), "Chain RPC endpoint (overrides config)")
		dbURL      = pflag.String("db-url", envOrDefault("DATABASE_URL", ""), "Postgres URL (overrides config)")
		logLevel   = pflag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

		migrateDown = pflag.Int("migrate-down", 0, "Roll back the last N migrations and exit")
	)
	pflag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := distributor.LoadConfig(*configPath, *rpcURL, *dbURL)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *migrateDown > 0 {
		if err := rollback(cfg, *migrateDown, logger); err != nil {
			logger.Error("migrate down failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func rollback(cfg *distributor.Config, steps int, logger *slog.Logger) error {
	ctx := context.Background()

	db, err := storage.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	defer db.Close()

	if err := db.MigrateDown(ctx, steps); err != nil {
		return err
	}
	logger.Info("rolled back migrations", "steps", steps)
	return nil
}

func run(cfg *distributor.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	client, err := chain.Dial(ctx, cfg.Chain, logger)
	if err != nil {
		return fmt.Errorf("chain dial: %w", err)
	}
	defer client.Close()

	var mirror ingest.Mirror
	if len(cfg.Mirror.Brokers) > 0 {
		kafkaMirror, err := ingest.NewKafkaMirror(cfg.Mirror)
		if err != nil {
			return fmt.Errorf("create kafka mirror: %w", err)
		}
		defer kafkaMirror.Close()
		mirror = kafkaMirror
	}

	var notifier distributor.Notifier
	if cfg.Notify.URL != "" {
		n, err := notify.Connect(cfg.Notify, logger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer n.Close()
		notifier = n
	}

	var snapshots distributor.SnapshotStore
	if cfg.Snapshot.Endpoint != "" {
		s, err := snapshot.New(cfg.Snapshot, logger)
		if err != nil {
			return fmt.Errorf("create snapshot store: %w", err)
		}
		snapshots = s
	}

	var lock distributor.LeaderLock
	if cfg.Leader.Addr != "" {
		l, err := leader.New(cfg.Leader)
		if err != nil {
			return fmt.Errorf("create leader lock: %w", err)
		}
		defer l.Close()
		lock = l
	}

	transfers := storage.NewTransferRepository(db)
	distributions := storage.NewDistributionRepository(db)
	ingestor := ingest.New(client, transfers, mirror, logger)
	orchestrator := distributor.NewOrchestrator(distributions, client, notifier, snapshots, logger)

	worker := distributor.NewWorker(cfg.Worker, client, transfers, ingestor, orchestrator, lock, logger)

	adminServer := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      admin.NewServer(worker, db, logger).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := worker.Stop(shutdownCtx); err != nil {
			logger.Error("worker shutdown failed", "error", err)
		}
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown failed", "error", err)
		}
		cancel()
	}()

	logger.Info("starting admin server", "addr", cfg.AdminAddr)
	if err := adminServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("admin server error: %w", err)
	}

	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
