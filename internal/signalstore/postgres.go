package signalstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/types"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// pq error code for a missing relation
const undefinedTable = "42P01"

type row struct {
	Seq       int64               `db:"seq"`
	Timestamp time.Time           `db:"timestamp"`
	SignalID  string              `db:"signal_id"`
	Symbol    string              `db:"symbol"`
	Action    string              `db:"action"`
	Price     decimal.NullDecimal `db:"price"`
	StopLoss  decimal.Decimal     `db:"stop_loss"`
	Target    decimal.Decimal     `db:"target"`
	Status    string              `db:"status"`
	Kind      sql.NullString      `db:"kind"`
}

// PostgresStore keeps signals in one append-only table. seq gives the
// insertion order; signal_id is deliberately not unique.
type PostgresStore struct {
	db    *sqlx.DB
	table string

	mu     sync.Mutex
	schema bool
}

var _ interfaces.SignalStore = (*PostgresStore)(nil)

// NewPostgres opens a lazy connection pool; nothing is contacted until the
// first Append or LoadUnprocessed.
func NewPostgres(dsn, table string) (*PostgresStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	return &PostgresStore{db: db, table: table}, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema {
		return nil
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq        BIGSERIAL PRIMARY KEY,
	timestamp  TIMESTAMPTZ NOT NULL,
	signal_id  TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	action     TEXT NOT NULL,
	price      NUMERIC,
	stop_loss  NUMERIC NOT NULL,
	target     NUMERIC NOT NULL,
	status     TEXT NOT NULL DEFAULT 'NEW',
	kind       TEXT
)`, s.table))
	if err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	s.schema = true
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, sig types.Signal) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	r := row{
		Timestamp: sig.Timestamp,
		SignalID:  sig.ID,
		Symbol:    sig.Symbol,
		Action:    string(sig.Action),
		StopLoss:  sig.StopLoss,
		Target:    sig.Target,
		Status:    statusNew,
		Kind:      sql.NullString{String: string(sig.Kind), Valid: sig.Kind != ""},
	}
	if sig.TriggerPrice != nil {
		r.Price = decimal.NullDecimal{Decimal: *sig.TriggerPrice, Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (timestamp, signal_id, symbol, action, price, stop_loss, target, status, kind)
		 VALUES (:timestamp, :signal_id, :symbol, :action, :price, :stop_loss, :target, :status, :kind)`, s.table), r)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", sig.ID, err)
	}
	logger.Debug(ctx, "Signal appended", "table", s.table, "signal_id", sig.ID)
	return nil
}

// LoadUnprocessed filters known ids server side and returns rows in seq order.
// A table that does not exist yet reads as empty.
func (s *PostgresStore) LoadUnprocessed(ctx context.Context, known map[string]struct{}) ([]types.Signal, error) {
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}

	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf(
		`SELECT seq, timestamp, signal_id, symbol, action, price, stop_loss, target, status, kind
		 FROM %s WHERE NOT (signal_id = ANY($1)) ORDER BY seq`, s.table), pq.Array(ids))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []types.Signal
	for rows.Next() {
		var r row
		if err := rows.StructScan(&r); err != nil {
			skipRow(ctx, s.table, 0, err)
			continue
		}
		sig, err := r.signal()
		if err != nil {
			skipRow(ctx, s.table, int(r.Seq), err)
			continue
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (r row) signal() (types.Signal, error) {
	rec := map[string]string{
		"timestamp": formatTimestamp(r.Timestamp),
		"signal_id": r.SignalID,
		"symbol":    r.Symbol,
		"action":    r.Action,
		"stop_loss": r.StopLoss.String(),
		"target":    r.Target.String(),
		"kind":      r.Kind.String,
	}
	if r.Price.Valid {
		rec["price"] = r.Price.Decimal.String()
	}
	return decodeRecord(rec)
}
