package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"autotrade/internal/accounts"
	"autotrade/internal/api"
	"autotrade/internal/broker/zerodha"
	"autotrade/internal/engine"
	"autotrade/internal/engine/engineobs"
	"autotrade/internal/eod"
	"autotrade/internal/eod/eodobs"
	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/signalstore"
	"autotrade/internal/store"
	"autotrade/internal/trace"
	"autotrade/internal/tradelog"

	"github.com/joho/godotenv"
)

// initializeSystem loads .env and starts the logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs gzips journals older than TRADER_LOG_RETENTION_DAYS.
func compressOldLogs(ctx context.Context, journal *tradelog.Journal) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := journal.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

func initializeAccounts(ctx context.Context, cfg *store.Config) *accounts.Registry {
	if cfg.IsDryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}
	reg := accounts.Load(ctx, cfg.AccountsFile, zerodha.Factory(cfg))
	if reg.Len() == 0 {
		logger.Warn(ctx, "No active accounts - signals will be journalled as NO_ACCOUNTS", "path", cfg.AccountsFile)
	}
	return reg
}

func initializeStore(ctx context.Context, cfg *store.Config) (interfaces.SignalStore, error) {
	st, err := signalstore.Open(cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open signal store", err, "backend", cfg.Store.Backend)
		return nil, err
	}
	return st, nil
}

func initializeEngine(cfg *store.Config, st interfaces.SignalStore, reg *accounts.Registry, reporter interfaces.Reporter) interfaces.Engine {
	eng := engine.New(engine.OptionsFromConfig(cfg), st, reg, reporter)
	return engineobs.Wrap(eng)
}

func initializeEOD(dir string) interfaces.DaySummarizer {
	return eodobs.Wrap(eod.NewSummarizer(dir))
}

// initializeOps returns nil when ops.addr is empty.
func initializeOps(cfg *store.Config, eng interfaces.Engine, reg *accounts.Registry) *api.Server {
	if cfg.Ops.Addr == "" {
		return nil
	}
	return api.New(api.Options{Addr: cfg.Ops.Addr, DryRun: cfg.IsDryRun()}, eng, reg)
}
