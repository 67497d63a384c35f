package eod

import (
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"autotrade/internal/tradelog"
	"autotrade/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summarizerAt(t *testing.T, now time.Time) (*eodSummarizer, *tradelog.Journal) {
	t.Helper()
	dir := t.TempDir()
	return &eodSummarizer{dir: dir, now: func() time.Time { return now }}, tradelog.New(dir)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSummarizeDayPerAccount(t *testing.T) {
	now := time.Now().In(tradelog.IST)
	s, j := summarizerAt(t, now)

	require.NoError(t, j.Append(
		tradelog.Entry{SignalID: "s1", Account: "acct1", Status: "SUBMITTED"},
		tradelog.Entry{SignalID: "s1", Account: "acct2", Status: "FAILED"},
		tradelog.Entry{SignalID: "s2", Account: "acct1", Status: "SUBMITTED"},
		tradelog.Entry{SignalID: "s2", Account: "acct2", Status: "SUBMITTED"},
		tradelog.Entry{SignalID: "s3", Status: "EXPIRED"},
	))

	sum, err := s.Summarize(context.Background(), now)
	require.NoError(t, err)
	require.NotEmpty(t, sum.Path)

	assert.Equal(t, now.Format("2006-01-02"), sum.Date)
	assert.Equal(t, []types.AccountTally{
		{Account: "acct1", Submitted: 2, Failed: 0, Signals: 2},
		{Account: "acct2", Submitted: 1, Failed: 1, Signals: 2},
	}, sum.Accounts)
	assert.Equal(t, types.AccountTally{Account: "TOTAL", Submitted: 3, Failed: 1, Signals: 3}, sum.Total)

	assert.Equal(t, [][]string{
		{"account", "submitted", "failed", "signals"},
		{"acct1", "2", "0", "2"},
		{"acct2", "1", "1", "2"},
		{"TOTAL", "3", "1", "3"},
	}, readCSV(t, sum.Path))
}

func TestSummarizeRewritesEarlierSummary(t *testing.T) {
	now := time.Now().In(tradelog.IST)
	s, j := summarizerAt(t, now)

	require.NoError(t, j.Append(tradelog.Entry{SignalID: "s1", Account: "acct1", Status: "SUBMITTED"}))
	_, err := s.Summarize(context.Background(), now)
	require.NoError(t, err)

	require.NoError(t, j.Append(tradelog.Entry{SignalID: "s2", Account: "acct1", Status: "FAILED"}))
	sum, err := s.Summarize(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"account", "submitted", "failed", "signals"},
		{"acct1", "1", "1", "2"},
		{"TOTAL", "1", "1", "2"},
	}, readCSV(t, sum.Path))
}

func TestSummarizeDayNothingJournalled(t *testing.T) {
	s, _ := summarizerAt(t, time.Now())
	sum, err := s.Summarize(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, sum.Path)
	assert.Empty(t, sum.Accounts)
}

func TestDue(t *testing.T) {
	before := time.Date(2025, 10, 14, 15, 0, 0, 0, tradelog.IST)
	s, _ := summarizerAt(t, before)
	run, _ := s.Due()
	assert.False(t, run)

	after := time.Date(2025, 10, 14, 16, 0, 0, 0, tradelog.IST)
	s.now = func() time.Time { return after }
	run, path := s.Due()
	assert.True(t, run)

	require.NoError(t, os.MkdirAll(s.dir+"/eod", 0o755))
	require.NoError(t, os.WriteFile(path, []byte("done"), 0o644))
	run, _ = s.Due()
	assert.False(t, run)
}
