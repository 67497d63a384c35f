package accounts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"autotrade/internal/interfaces"
	"autotrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBroker struct{ name string }

func (nopBroker) ResolveSymbol(context.Context, string) (types.Instrument, error) {
	return types.Instrument{}, nil
}
func (nopBroker) LatestPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (nopBroker) PlaceOrder(context.Context, types.Order) (types.OrderResp, error) {
	return types.OrderResp{}, nil
}

func okFactory(_ context.Context, acct types.AccountConfig) (interfaces.Broker, error) {
	return nopBroker{name: acct.Name}, nil
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func names(r *Registry) []string {
	var out []string
	for _, a := range r.Accounts() {
		out = append(out, a.Name())
	}
	return out
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "accounts.json", `[
  {"name": "alpha", "api_key": "k1", "api_secret": "s1", "auth_token": "t1"},
  {"name": "beta", "api_key": "k2", "api_secret": "s2", "auth_token": "t2", "dry_run": true}
]`)

	r := Load(context.Background(), p, okFactory)
	require.Equal(t, []string{"alpha", "beta"}, names(r))

	alpha := r.Accounts()[0].Config
	assert.Equal(t, "k1", alpha.APIKey)
	assert.Equal(t, "s1", alpha.APISecret)
	assert.Equal(t, "t1", alpha.AuthToken)
	assert.False(t, alpha.DryRun)
	assert.True(t, r.Accounts()[1].Config.DryRun)

	ref, ok := r.Reference()
	require.True(t, ok)
	assert.Equal(t, "alpha", ref.Name())
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "accounts.yaml", `
- name: alpha
  api_key: k1
  auth_token: t1
  exchange: BSE
`)
	r := Load(context.Background(), p, okFactory)
	require.Equal(t, 1, r.Len())
	assert.Equal(t, "BSE", r.Accounts()[0].Config.Exchange)
}

func TestLoadIsolatesFailures(t *testing.T) {
	p := writeFile(t, "accounts.json", `[
  {"name": "a1"}, {"name": "a2"}, {"name": "a3"}, {"name": "a4"}, {"name": "a5"}
]`)
	factory := func(ctx context.Context, acct types.AccountConfig) (interfaces.Broker, error) {
		if acct.Name == "a2" || acct.Name == "a4" {
			return nil, errors.New("bad credentials")
		}
		return okFactory(ctx, acct)
	}

	r := Load(context.Background(), p, factory)
	assert.Equal(t, []string{"a1", "a3", "a5"}, names(r))
}

func TestLoadRejectsDuplicatesAndNameless(t *testing.T) {
	p := writeFile(t, "accounts.json", `[
  {"name": "alpha"}, {"name": "alpha", "dry_run": true}, {"api_key": "x"}, {"name": " beta "}
]`)
	r := Load(context.Background(), p, okFactory)
	assert.Equal(t, []string{"alpha", "beta"}, names(r))
	assert.False(t, r.Accounts()[0].Config.DryRun, "first record wins")
}

func TestLoadFailedRecordDoesNotReserveName(t *testing.T) {
	p := writeFile(t, "accounts.json", `[{"name": "alpha", "api_key": "bad"}, {"name": "alpha", "api_key": "good"}]`)
	factory := func(ctx context.Context, acct types.AccountConfig) (interfaces.Broker, error) {
		if acct.APIKey == "bad" {
			return nil, errors.New("bad key")
		}
		return okFactory(ctx, acct)
	}

	r := Load(context.Background(), p, factory)
	require.Equal(t, 1, r.Len())
	assert.Equal(t, "good", r.Accounts()[0].Config.APIKey)
}

func TestLoadMissingOrBrokenFile(t *testing.T) {
	r := Load(context.Background(), filepath.Join(t.TempDir(), "none.json"), okFactory)
	assert.Equal(t, 0, r.Len())
	_, ok := r.Reference()
	assert.False(t, ok)

	r = Load(context.Background(), writeFile(t, "accounts.json", `{"name": `), okFactory)
	assert.Equal(t, 0, r.Len())
}

func TestAccountsReturnsCopy(t *testing.T) {
	r := New(Account{Config: types.AccountConfig{Name: "a"}, Broker: nopBroker{}})
	got := r.Accounts()
	got[0].Config.Name = "changed"
	assert.Equal(t, "a", r.Accounts()[0].Name())
}
