package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autotrade/internal/logger"
	"autotrade/internal/signalstore"
	"autotrade/internal/store"
	"autotrade/internal/telegram"
	"autotrade/internal/trace"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", *configPath)
		os.Exit(1)
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" || cfg.Telegram.ChannelID == 0 {
		logger.Error(ctx, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHANNEL_ID are required")
		os.Exit(1)
	}

	st, err := signalstore.Open(cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open signal store", err, "backend", cfg.Store.Backend)
		os.Exit(1)
	}
	defer st.Close()

	listener, err := telegram.New(token, cfg.Telegram.TimeoutSeconds)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to connect to Telegram", err)
		os.Exit(1)
	}

	logger.Info(ctx, "Loader started", "store", cfg.Store.Backend, "channel_id", cfg.Telegram.ChannelID)
	if err := listener.Subscribe(ctx, cfg.Telegram.ChannelID, signalWriter(st, time.Now)); err != nil {
		logger.ErrorWithErr(ctx, "Subscription ended", err)
	}
	logger.Info(context.WithoutCancel(ctx), "Loader stopped")
	_ = trace.Shutdown(context.WithoutCancel(ctx))
}
