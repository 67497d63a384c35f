package signalstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"autotrade/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SIGNAL_STORE_TEST_DSN")
	if dsn == "" {
		t.Skip("SIGNAL_STORE_TEST_DSN not set")
	}

	table := fmt.Sprintf("signals_test_%d", time.Now().UnixNano())
	s, err := NewPostgres(dsn, table)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.Exec("DROP TABLE IF EXISTS " + table)
		_ = s.Close()
	})
	return s
}

func TestPostgresMissingTableIsEmpty(t *testing.T) {
	s := testPostgres(t)
	sigs, err := s.LoadUnprocessed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestPostgresAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := testPostgres(t)

	a := newSignal(t, "BUY RELIANCE AT 2500 SL 2400 TGT 2600")
	b := newSignal(t, "NIFTY 26100 PE\nAbove : 185\nSL : 175\nTGT : 195")
	require.NoError(t, s.Append(ctx, a))
	require.NoError(t, s.Append(ctx, b))

	sigs, err := s.LoadUnprocessed(ctx, map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, ids(sigs))
	assert.True(t, sigs[1].TriggerPrice.Equal(*b.TriggerPrice))

	sigs, err = s.LoadUnprocessed(ctx, map[string]struct{}{a.ID: {}})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(sigs))
}

func TestNewPostgresRejectsBadTable(t *testing.T) {
	_, err := NewPostgres("postgres://localhost/x", "signals; DROP TABLE x")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	cfg := store.Default()
	cfg.Store.Path = t.TempDir() + "/signals.csv"

	s, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &CSVStore{}, s)

	cfg.Store.Backend = store.BackendPostgres
	cfg.Store.DSNEnv = "AUTOTRADE_TEST_UNSET_DSN"
	t.Setenv("AUTOTRADE_TEST_UNSET_DSN", "")
	_, err = Open(cfg)
	assert.Error(t, err)

	cfg.Store.Backend = "sqlite"
	_, err = Open(cfg)
	assert.Error(t, err)
}
