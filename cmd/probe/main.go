package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"autotrade/internal/accounts"
	"autotrade/internal/broker/zerodha"
	"autotrade/internal/logger"
	"autotrade/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbols := flag.String("symbols", "RELIANCE,NIFTY 50", "comma-separated symbols to resolve and quote")
	timeout := flag.Duration("timeout", 15*time.Second, "per-probe timeout")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	var list []string
	for _, s := range strings.Split(*symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		fmt.Println("Error: -symbols is empty")
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	reg := accounts.Load(ctx, cfg.AccountsFile, zerodha.Factory(cfg))
	defer reg.Close()
	if reg.Len() == 0 {
		fmt.Printf("No active accounts in %s\n", cfg.AccountsFile)
		os.Exit(1)
	}

	fmt.Printf("Probing %d account(s), mode %s\n\n", reg.Len(), cfg.Mode)
	failed := report(os.Stdout, probe(ctx, reg, list, *timeout))
	if failed > 0 {
		fmt.Printf("\n%d probe(s) failed\n", failed)
		reg.Close()
		os.Exit(2)
	}
}
