// Package accounts loads the brokerage accounts a signal is dispatched to.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/metrics"
	"autotrade/internal/types"

	"gopkg.in/yaml.v3"
)

// Factory builds the broker adapter for one account record.
type Factory func(ctx context.Context, acct types.AccountConfig) (interfaces.Broker, error)

// Account is a loaded account with its adapter.
type Account struct {
	Config types.AccountConfig
	Broker interfaces.Broker
}

func (a Account) Name() string { return a.Config.Name }

// Registry is the immutable set of active accounts, in file order.
type Registry struct {
	accounts []Account
}

// Load reads path and builds one adapter per record. Records that cannot be
// built are logged and left out; a missing or unreadable file yields an empty
// registry. Load never fails the process.
func Load(ctx context.Context, path string, factory Factory) *Registry {
	records, err := readRecords(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to read accounts file", err, "path", path)
		metrics.AccountsActive.Set(0)
		return &Registry{}
	}

	r := &Registry{}
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		rec.Name = strings.TrimSpace(rec.Name)
		if err := validate(rec, seen); err != nil {
			logger.ErrorWithErr(ctx, "Account excluded", fmt.Errorf("%w: %v", types.ErrAccountLoad, err),
				"account", rec.Name, "index", i)
			continue
		}

		brk, err := factory(ctx, rec)
		if err != nil {
			logger.ErrorWithErr(ctx, "Account excluded", fmt.Errorf("%w: %v", types.ErrAccountLoad, err),
				"account", rec.Name, "index", i)
			continue
		}

		seen[rec.Name] = true
		r.accounts = append(r.accounts, Account{Config: rec, Broker: brk})
		logger.Info(ctx, "Account loaded", "account", rec.Name, "dry_run", rec.DryRun)
	}

	metrics.AccountsActive.Set(float64(len(r.accounts)))
	logger.Info(ctx, "Accounts ready", "active", len(r.accounts), "configured", len(records))
	return r
}

// New builds a registry from already constructed accounts.
func New(accounts ...Account) *Registry {
	return &Registry{accounts: append([]Account(nil), accounts...)}
}

func readRecords(path string) ([]types.AccountConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// JSON is valid YAML, so one decoder reads both formats
	var records []types.AccountConfig
	if err := yaml.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

func validate(rec types.AccountConfig, seen map[string]bool) error {
	if rec.Name == "" {
		return errors.New("account has no name")
	}
	if seen[rec.Name] {
		return fmt.Errorf("duplicate account name %q", rec.Name)
	}
	return nil
}

// Accounts returns the active accounts in file order.
func (r *Registry) Accounts() []Account {
	return append([]Account(nil), r.accounts...)
}

func (r *Registry) Len() int { return len(r.accounts) }

// Reference returns the first active account, used for market data.
func (r *Registry) Reference() (Account, bool) {
	if len(r.accounts) == 0 {
		return Account{}, false
	}
	return r.accounts[0], true
}

// Close releases adapter resources such as quote streams.
func (r *Registry) Close() {
	for _, a := range r.accounts {
		if s, ok := a.Broker.(interface{ Stop() }); ok {
			s.Stop()
		}
	}
}
