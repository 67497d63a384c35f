package eod

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"autotrade/internal/tradelog"
	"autotrade/internal/types"
)

type eodSummarizer struct {
	dir string
	now func() time.Time
}

var header = []string{"account", "submitted", "failed", "signals"}

// Summarize writes one row per account from the day's journal plus a TOTAL
// row. Journal lines without an account count towards TOTAL signals only.
func (s *eodSummarizer) Summarize(_ context.Context, day time.Time) (types.DaySummary, error) {
	sum := types.DaySummary{Date: day.In(tradelog.IST).Format("2006-01-02")}

	entries, err := tradelog.ReadDay(s.dir, day)
	if err != nil {
		return sum, err
	}
	if len(entries) == 0 {
		return sum, nil
	}

	sum.Accounts, sum.Total = tally(entries)

	outPath := eodCSVPath(s.dir, day)
	if err := writeCSV(outPath, sum); err != nil {
		return sum, err
	}
	sum.Path = outPath
	return sum, nil
}

// Due is true after market close until today's summary exists.
func (s *eodSummarizer) Due() (bool, string) {
	now := s.now().In(tradelog.IST)
	outPath := eodCSVPath(s.dir, now)
	if now.After(marketCloseTime(now)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}

// tally returns per-account counts sorted by account name, and the day total.
func tally(entries []tradelog.Entry) ([]types.AccountTally, types.AccountTally) {
	rows := map[string]*accountRow{}
	allSignals := map[string]struct{}{}
	for _, e := range entries {
		allSignals[e.SignalID] = struct{}{}
		if e.Account == "" {
			continue
		}
		row := rows[e.Account]
		if row == nil {
			row = &accountRow{signals: map[string]struct{}{}}
			rows[e.Account] = row
		}
		row.signals[e.SignalID] = struct{}{}
		if e.Status == string(types.Submitted) {
			row.submitted++
		} else {
			row.failed++
		}
	}

	names := make([]string, 0, len(rows))
	for k := range rows {
		names = append(names, k)
	}
	sort.Strings(names)

	total := types.AccountTally{Account: "TOTAL", Signals: len(allSignals)}
	out := make([]types.AccountTally, 0, len(names))
	for _, name := range names {
		t := rows[name].tally(name)
		total.Submitted += t.Submitted
		total.Failed += t.Failed
		out = append(out, t)
	}
	return out, total
}

func writeCSV(path string, sum types.DaySummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range append(sum.Accounts, sum.Total) {
		rec := []string{t.Account, strconv.Itoa(t.Submitted), strconv.Itoa(t.Failed), strconv.Itoa(t.Signals)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
