package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"autotrade/internal/signalstore"
	"autotrade/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Append(context.Context, types.Signal) error { return errors.New("disk full") }
func (failingStore) LoadUnprocessed(context.Context, map[string]struct{}) ([]types.Signal, error) {
	return nil, nil
}
func (failingStore) Close() error { return nil }

func TestSignalWriterStoresParsedSignals(t *testing.T) {
	ctx := context.Background()
	st := signalstore.NewCSV(filepath.Join(t.TempDir(), "signals.csv"))
	now := time.Date(2025, 10, 14, 10, 15, 0, 0, time.UTC)
	h := signalWriter(st, func() time.Time { return now })

	require.NoError(t, h(ctx, "NIFTY 26100 PE\nAbove : 185\nSL : 170\nTGT : 210"))
	require.NoError(t, h(ctx, "good morning traders"))
	require.NoError(t, h(ctx, "SELL RELIANCE AT 2500 SL 2550 TGT 2400"))

	sigs, err := st.LoadUnprocessed(ctx, nil)
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	assert.Equal(t, "NIFTY 26100 PE", sigs[0].Symbol)
	assert.Equal(t, types.Option, sigs[0].Kind)
	require.NotNil(t, sigs[0].TriggerPrice)
	assert.Equal(t, "185", sigs[0].TriggerPrice.String())
	assert.True(t, sigs[0].Timestamp.Equal(now))
	assert.NotEmpty(t, sigs[0].ID)

	assert.Equal(t, "RELIANCE", sigs[1].Symbol)
	assert.Equal(t, types.Sell, sigs[1].Action)
	assert.Equal(t, types.Equity, sigs[1].Kind)
	assert.NotEqual(t, sigs[0].ID, sigs[1].ID)
}

func TestSignalWriterReportsStoreErrors(t *testing.T) {
	h := signalWriter(failingStore{}, time.Now)
	err := h(context.Background(), "BUY RELIANCE AT 2500 SL 2400 TGT 2600")
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, h(context.Background(), "no signal here"))
}
