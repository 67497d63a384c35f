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
	"autotrade/internal/trace"
	"autotrade/internal/tradelog"
)

const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx := context.Background()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}

	journal := tradelog.New(tradelog.DefaultDir())
	compressOldLogs(ctx, journal)

	st, err := initializeStore(ctx, cfg)
	if err != nil {
		os.Exit(1)
	}
	defer st.Close()

	reg := initializeAccounts(ctx, cfg)
	defer reg.Close()

	eng := initializeEngine(cfg, st, reg, journal)
	summarizer := initializeEOD(journal.Dir())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(runCtx) }()

	if ops := initializeOps(cfg, eng, reg); ops != nil {
		go func() {
			if err := ops.Run(runCtx); err != nil {
				logger.ErrorWithErr(ctx, "Ops server failed", err, "addr", cfg.Ops.Addr)
			}
		}()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	logger.Info(ctx, "Dispatcher started",
		"mode", cfg.Mode,
		"store", cfg.Store.Backend,
		"accounts", reg.Len(),
	)

loop:
	for {
		select {
		case <-eodTick.C:
			if !cfg.EOD.Enabled {
				continue
			}
			if due, _ := summarizer.Due(); due {
				_, _ = summarizer.Summarize(ctx, time.Now())
			}
		case err := <-engineDone:
			if err != nil {
				logger.ErrorWithErr(ctx, "Dispatch engine exited", err)
			}
			break loop
		case s := <-sigc:
			logger.Info(ctx, "Shutting down...", "signal", s.String())
			break loop
		}
	}

	cancel()
	sctx, stop := context.WithTimeout(ctx, shutdownGrace)
	defer stop()
	if err := eng.Shutdown(sctx); err != nil {
		logger.Warn(ctx, "Flows still running at exit", "error", err)
	}

	if cfg.EOD.Enabled {
		_, _ = summarizer.Summarize(ctx, time.Now())
	}
	_ = trace.Shutdown(sctx)
}
