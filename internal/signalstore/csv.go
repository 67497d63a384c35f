package signalstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/metrics"
	"autotrade/internal/types"
)

// Header is the column layout of the signal file. kind was added after the
// first files were written; rows without it are still accepted.
var Header = []string{"timestamp", "signal_id", "symbol", "action", "price", "stop_loss", "target", "status", "kind"}

const statusNew = "NEW"

// CSVStore keeps signals in an append-only CSV file. Several processes may
// share the file: one appends while others poll it.
type CSVStore struct {
	path string
	mu   sync.Mutex

	// skipped holds line numbers already reported as malformed. Rows are
	// append-only, so a line number keeps pointing at the same row.
	skipMu  sync.Mutex
	skipped map[int]struct{}
}

var _ interfaces.SignalStore = (*CSVStore)(nil)

func NewCSV(path string) *CSVStore {
	return &CSVStore{path: path, skipped: make(map[int]struct{})}
}

func (s *CSVStore) Path() string { return s.path }

// Append writes one row in a single write call so a concurrent reader sees
// either nothing or a complete line. The header is written with the first row.
func (s *CSVStore) Append(ctx context.Context, sig types.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		_ = w.Write(Header)
	}
	if err := w.Write(encodeRow(sig)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	logger.Debug(ctx, "Signal appended", "path", s.path, "signal_id", sig.ID)
	return nil
}

// LoadUnprocessed reads the whole file. A trailing line without a newline is
// an append still in progress and is left for the next poll.
func (s *CSVStore) LoadUnprocessed(ctx context.Context, known map[string]struct{}) ([]types.Signal, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var cols map[string]int
	var out []types.Signal
	lineNo := 0
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		lineNo++

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields, perr := csv.NewReader(strings.NewReader(line)).Read()
		if cols == nil {
			if perr != nil {
				return nil, fmt.Errorf("read header of %s: %w", s.path, perr)
			}
			cols = headerIndex(fields)
			if _, ok := cols["signal_id"]; !ok {
				return nil, fmt.Errorf("%s: header has no signal_id column", s.path)
			}
			continue
		}
		if perr != nil {
			s.skipRow(ctx, lineNo, perr)
			continue
		}

		rec := make(map[string]string, len(cols))
		for name, i := range cols {
			if i < len(fields) {
				rec[name] = fields[i]
			}
		}

		if _, done := known[strings.TrimSpace(rec["signal_id"])]; done {
			continue
		}

		sig, perr := decodeRecord(rec)
		if perr != nil {
			s.skipRow(ctx, lineNo, perr)
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

func (s *CSVStore) Close() error { return nil }

func headerIndex(fields []string) map[string]int {
	cols := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(f, "\ufeff")))
		cols[name] = i
	}
	return cols
}

// skipRow reports a malformed row the first time it is seen.
func (s *CSVStore) skipRow(ctx context.Context, line int, err error) {
	s.skipMu.Lock()
	_, seen := s.skipped[line]
	s.skipped[line] = struct{}{}
	s.skipMu.Unlock()
	if seen {
		return
	}
	metrics.StoreRowsSkipped.Inc()
	logger.Warn(ctx, "Skipping malformed signal row", "path", s.path, "line", line, "error", err)
}

func (s *CSVStore) skippedRows() int {
	s.skipMu.Lock()
	defer s.skipMu.Unlock()
	return len(s.skipped)
}

func encodeRow(sig types.Signal) []string {
	price := ""
	if sig.TriggerPrice != nil {
		price = sig.TriggerPrice.String()
	}
	return []string{
		formatTimestamp(sig.Timestamp),
		sig.ID,
		sig.Symbol,
		string(sig.Action),
		price,
		sig.StopLoss.String(),
		sig.Target.String(),
		statusNew,
		string(sig.Kind),
	}
}
