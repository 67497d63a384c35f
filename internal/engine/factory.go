package engine

import (
	"time"

	"autotrade/internal/store"

	"github.com/shopspring/decimal"
)

// Options are the engine's timing and order settings.
type Options struct {
	PollInterval     time.Duration
	WatchInterval    time.Duration
	RetryBackoff     time.Duration
	MaxWait          time.Duration // 0 waits forever
	PlacementTimeout time.Duration

	LimitOffset         decimal.Decimal
	ReplayOnStart       bool
	SupersedeSameSymbol bool

	Product  string
	Validity string
	Tag      string
}

func OptionsFromConfig(cfg *store.Config) Options {
	return Options{
		PollInterval:        cfg.PollInterval(),
		WatchInterval:       cfg.WatchInterval(),
		RetryBackoff:        cfg.PriceRetryBackoff(),
		MaxWait:             cfg.TriggerMaxWait(),
		PlacementTimeout:    cfg.PlacementTimeout(),
		LimitOffset:         decimal.NewFromFloat(cfg.Dispatch.LimitOffset),
		ReplayOnStart:       cfg.Dispatch.ReplayOnStart,
		SupersedeSameSymbol: cfg.Dispatch.SupersedeSameSymbol,
		Product:             cfg.Broker.Product,
		Validity:            cfg.Broker.Validity,
		Tag:                 cfg.Broker.Tag,
	}
}
