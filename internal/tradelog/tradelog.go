package tradelog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/types"
)

// IST is the zone journal days are cut in.
var IST = time.FixedZone("IST", 19800)

// Entry is one journal line: a placement on one account, or a flow that
// ended without dispatching (Account empty).
type Entry struct {
	Time      string `json:"time"`
	SignalID  string `json:"signal_id"`
	Account   string `json:"account,omitempty"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Qty       int    `json:"qty,omitempty"`
	OrderType string `json:"order_type,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
	Limit     string `json:"limit,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Journal appends dispatch outcomes to one JSON-lines file per IST day.
type Journal struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

var _ interfaces.Reporter = (*Journal)(nil)

// DefaultDir is TRADER_LOG_DIR, or "logs".
func DefaultDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func New(dir string) *Journal {
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) Dir() string { return j.dir }

// DayFile is the journal path for t's IST date.
func DayFile(dir string, t time.Time) string {
	return filepath.Join(dir, t.In(IST).Format("2006-01-02")+".txt")
}

// Report journals an outcome. Write failures are logged; the flow is already over.
func (j *Journal) Report(ctx context.Context, out types.Outcome) {
	entries := Entries(out, j.now())
	if err := j.Append(entries...); err != nil {
		logger.ErrorWithErr(ctx, "Failed to write dispatch journal", err,
			"signal_id", out.Signal.ID,
			"state", out.State,
		)
	}
}

// Entries flattens an outcome into journal lines stamped with now.
func Entries(out types.Outcome, now time.Time) []Entry {
	sig := out.Signal
	stamp := now.In(IST).Format("2006-01-02 15:04:05")

	trigger := ""
	if sig.TriggerPrice != nil {
		trigger = sig.TriggerPrice.String()
	}

	if out.State != types.StateDispatched {
		e := Entry{
			Time:     stamp,
			SignalID: sig.ID,
			Symbol:   sig.Symbol,
			Side:     string(sig.Action),
			Trigger:  trigger,
			Status:   string(out.State),
		}
		if out.Err != nil {
			e.Error = out.Err.Error()
		}
		return []Entry{e}
	}

	entries := make([]Entry, 0, len(out.Placements))
	for _, p := range out.Placements {
		e := Entry{
			Time:      stamp,
			SignalID:  sig.ID,
			Account:   p.Account,
			Symbol:    sig.Symbol,
			Side:      string(sig.Action),
			Qty:       p.Order.Qty,
			OrderType: string(p.Order.Type),
			Trigger:   trigger,
			OrderID:   p.Resp.OrderID,
			Status:    string(p.Status),
		}
		if p.Order.Type == types.OrderStopLimit {
			e.Limit = p.Order.LimitPrice.String()
		}
		if p.Err != nil {
			e.Error = p.Err.Error()
		}
		entries = append(entries, e)
	}
	return entries
}

// Append writes entries to today's file in a single write.
func (j *Journal) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf []byte
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		buf = append(buf, b...)
		buf = append(buf, '\n')
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	p := DayFile(j.dir, j.now())
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(buf)
	return err
}

// ReadDay returns the journal entries for t's IST date. A missing file reads
// as no entries; undecodable lines are skipped.
func ReadDay(dir string, t time.Time) ([]Entry, error) {
	f, err := os.Open(DayFile(dir, t))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

// CompressOlder gzips journal files not modified for retentionDays.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().AddDate(0, 0, -retentionDays)

	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		// an earlier run got as far as writing the archive
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			_ = os.Remove(gz)
			return nil
		}
		_ = os.Remove(p)
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
