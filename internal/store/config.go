package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"

	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

type Config struct {
	Mode         string `yaml:"mode"`
	PollSeconds  int    `yaml:"poll_seconds"`
	AccountsFile string `yaml:"accounts_file"`

	Store struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		DSNEnv  string `yaml:"dsn_env"`
		Table   string `yaml:"table"`
	} `yaml:"store"`

	Dispatch struct {
		WatchIntervalSeconds     int     `yaml:"watch_interval_seconds"`
		PriceRetryBackoffSeconds int     `yaml:"price_retry_backoff_seconds"`
		TriggerMaxWaitSeconds    int     `yaml:"trigger_max_wait_seconds"`
		LimitOffset              float64 `yaml:"limit_offset"`
		ReplayOnStart            bool    `yaml:"replay_on_start"`
		SupersedeSameSymbol      bool    `yaml:"supersede_same_symbol"`
		PlacementTimeoutSeconds  int     `yaml:"placement_timeout_seconds"`
	} `yaml:"dispatch"`

	Broker struct {
		EquityExchange string `yaml:"equity_exchange"`
		OptionExchange string `yaml:"option_exchange"`
		Product        string `yaml:"product"`
		Validity       string `yaml:"validity"`
		Tag            string `yaml:"tag"`
		StreamQuotes   bool   `yaml:"stream_quotes"`
	} `yaml:"broker"`

	DryRun struct {
		Quotes    map[string]float64 `yaml:"quotes"`
		BasePrice float64            `yaml:"base_price"`
		Spread    float64            `yaml:"spread"`
	} `yaml:"dry_run"`

	Telegram struct {
		ChannelID      int64 `yaml:"channel_id"`
		TimeoutSeconds int   `yaml:"timeout_seconds"`
	} `yaml:"telegram"`

	Ops struct {
		Addr string `yaml:"addr"`
	} `yaml:"ops"`

	EOD struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"eod"`
}

func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Store.Backend != BackendCSV && c.Store.Backend != BackendPostgres {
		return fmt.Errorf("invalid store.backend '%s': must be 'csv' or 'postgres'", c.Store.Backend)
	}
	if c.Store.Backend == BackendCSV && c.Store.Path == "" {
		return errors.New("store.path cannot be empty for the csv backend")
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be positive, got %d", c.PollSeconds)
	}
	if c.Dispatch.WatchIntervalSeconds <= 0 || c.Dispatch.PriceRetryBackoffSeconds <= 0 {
		return errors.New("dispatch.watch_interval_seconds and dispatch.price_retry_backoff_seconds must be positive")
	}
	if c.Dispatch.TriggerMaxWaitSeconds < 0 {
		return fmt.Errorf("dispatch.trigger_max_wait_seconds cannot be negative, got %d", c.Dispatch.TriggerMaxWaitSeconds)
	}
	if c.Dispatch.LimitOffset < 0 {
		return fmt.Errorf("dispatch.limit_offset cannot be negative, got %.2f", c.Dispatch.LimitOffset)
	}
	return nil
}

// IsDryRun reports whether the process-wide dry-run flag is set.
func (c *Config) IsDryRun() bool { return c.Mode == ModeDryRun }

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Dispatch.WatchIntervalSeconds) * time.Second
}

func (c *Config) PriceRetryBackoff() time.Duration {
	return time.Duration(c.Dispatch.PriceRetryBackoffSeconds) * time.Second
}

// TriggerMaxWait returns 0 when trigger watches may run forever.
func (c *Config) TriggerMaxWait() time.Duration {
	return time.Duration(c.Dispatch.TriggerMaxWaitSeconds) * time.Second
}

func (c *Config) PlacementTimeout() time.Duration {
	return time.Duration(c.Dispatch.PlacementTimeoutSeconds) * time.Second
}

// Default returns a config with every default applied, as if loaded from an empty file.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 5
	}
	if c.AccountsFile == "" {
		c.AccountsFile = "accounts.json"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendCSV
	}
	if c.Store.Path == "" {
		c.Store.Path = "trade_signals.csv"
	}
	if c.Store.DSNEnv == "" {
		c.Store.DSNEnv = "SIGNAL_STORE_DSN"
	}
	if c.Store.Table == "" {
		c.Store.Table = "trade_signals"
	}
	if c.Dispatch.WatchIntervalSeconds == 0 {
		c.Dispatch.WatchIntervalSeconds = 2
	}
	if c.Dispatch.PriceRetryBackoffSeconds == 0 {
		c.Dispatch.PriceRetryBackoffSeconds = 2
	}
	if c.Dispatch.LimitOffset == 0 {
		c.Dispatch.LimitOffset = 1.0
	}
	if c.Dispatch.PlacementTimeoutSeconds == 0 {
		c.Dispatch.PlacementTimeoutSeconds = 30
	}
	if c.Broker.EquityExchange == "" {
		c.Broker.EquityExchange = "NSE"
	}
	if c.Broker.OptionExchange == "" {
		c.Broker.OptionExchange = "NFO"
	}
	if c.Broker.Product == "" {
		c.Broker.Product = "MIS"
	}
	if c.Broker.Validity == "" {
		c.Broker.Validity = "DAY"
	}
	if c.Broker.Tag == "" {
		c.Broker.Tag = "autotrade"
	}
	if c.DryRun.BasePrice == 0 {
		c.DryRun.BasePrice = 1000
	}
	if c.DryRun.Spread == 0 {
		c.DryRun.Spread = 100
	}
	if c.Telegram.TimeoutSeconds == 0 {
		c.Telegram.TimeoutSeconds = 60
	}
}

// applyEnv lets .env / process environment override the file.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DRY_RUN"); v != "" {
		if strings.EqualFold(v, "true") {
			c.Mode = ModeDryRun
		} else {
			c.Mode = ModeLive
		}
	}
	if v := os.Getenv("SIGNAL_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ACCOUNTS_FILE"); v != "" {
		c.AccountsFile = v
	}
	if v := os.Getenv("TELEGRAM_CHANNEL_ID"); v != "" {
		var id int64
		if _, err := fmt.Sscanf(v, "%d", &id); err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHANNEL_ID '%s': %w", v, err)
		}
		c.Telegram.ChannelID = id
	}
	if v := os.Getenv("OPS_ADDR"); v != "" {
		c.Ops.Addr = v
	}
	return nil
}

// LoadConfig reads path (a missing file means all defaults), applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	var c Config

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	c.applyDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
