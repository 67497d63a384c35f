package zerodha

import (
	"context"

	"autotrade/internal/broker/brokerobs"
	"autotrade/internal/interfaces"
	"autotrade/internal/store"
	"autotrade/internal/types"
)

// ParamsFor derives adapter params for one account. The account is dry-run
// when either the process or the account itself says so.
func ParamsFor(cfg *store.Config, acct types.AccountConfig) Params {
	equity := cfg.Broker.EquityExchange
	if acct.Exchange != "" {
		equity = acct.Exchange
	}
	return Params{
		Account:        acct.Name,
		DryRun:         cfg.IsDryRun() || acct.DryRun,
		APIKey:         acct.APIKey,
		AccessToken:    acct.AuthToken,
		EquityExchange: equity,
		OptionExchange: cfg.Broker.OptionExchange,
		StreamQuotes:   cfg.Broker.StreamQuotes,
		Quotes:         cfg.DryRun.Quotes,
		BasePrice:      cfg.DryRun.BasePrice,
		Spread:         cfg.DryRun.Spread,
	}
}

// Factory returns the account-to-broker constructor used by the account
// registry. Every adapter is wrapped with logging and tracing.
func Factory(cfg *store.Config) func(ctx context.Context, acct types.AccountConfig) (interfaces.Broker, error) {
	return func(ctx context.Context, acct types.AccountConfig) (interfaces.Broker, error) {
		z, err := NewZerodha(ParamsFor(cfg, acct))
		if err != nil {
			return nil, err
		}
		return brokerobs.Wrap(acct.Name, z), nil
	}
}
