package signalstore

import (
	"fmt"
	"strings"
	"time"

	"autotrade/internal/parser"
	"autotrade/internal/types"

	"github.com/shopspring/decimal"
)

var ist = time.FixedZone("IST", 19800)

// zone-less layouts are read as IST, the exchange's local time
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, ist); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", types.ErrMalformedRow, s)
}

// decodeRecord builds a signal from named columns. Every required field is
// checked; one bad field rejects the whole row.
func decodeRecord(rec map[string]string) (types.Signal, error) {
	var sig types.Signal

	sig.ID = strings.TrimSpace(rec["signal_id"])
	if sig.ID == "" {
		return sig, fmt.Errorf("%w: empty signal_id", types.ErrMalformedRow)
	}

	sig.Symbol = strings.TrimSpace(rec["symbol"])
	if sig.Symbol == "" {
		return sig, fmt.Errorf("%w: empty symbol", types.ErrMalformedRow)
	}

	switch a := types.Action(strings.ToUpper(strings.TrimSpace(rec["action"]))); a {
	case types.Buy, types.Sell:
		sig.Action = a
	default:
		return sig, fmt.Errorf("%w: bad action %q", types.ErrMalformedRow, rec["action"])
	}

	ts, err := parseTimestamp(rec["timestamp"])
	if err != nil {
		return sig, err
	}
	sig.Timestamp = ts

	price, err := optionalDecimal(rec["price"])
	if err != nil {
		return sig, err
	}
	sig.TriggerPrice = price

	if sig.StopLoss, err = requiredDecimal("stop_loss", rec["stop_loss"]); err != nil {
		return sig, err
	}
	if sig.Target, err = requiredDecimal("target", rec["target"]); err != nil {
		return sig, err
	}

	switch k := types.Kind(strings.ToUpper(strings.TrimSpace(rec["kind"]))); k {
	case types.Equity, types.Option:
		sig.Kind = k
	default:
		sig.Kind = parser.KindForSymbol(sig.Symbol)
	}

	return sig, nil
}

// optionalDecimal treats an empty cell (or pandas' nan) as "no value".
func optionalDecimal(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad price %q", types.ErrMalformedRow, s)
	}
	return &d, nil
}

func requiredDecimal(name, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad %s %q", types.ErrMalformedRow, name, s)
	}
	return d, nil
}
