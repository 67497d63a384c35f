// Package parser turns free-text channel messages into trade signals.
package parser

import (
	"regexp"
	"strings"
	"time"

	"autotrade/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const number = `(\d+(?:\.\d+)?)`

var (
	// NIFTY 26100 PE
	optionHeader = regexp.MustCompile(`(?i)^([A-Z0-9]+(?: +[A-Z0-9]+)* +(?:CE|PE))$`)
	optionAbove  = regexp.MustCompile(`(?i)\bABOVE\s*:\s*` + number)
	optionSL     = regexp.MustCompile(`(?i)\bSL\s*:\s*` + number)
	optionTarget = regexp.MustCompile(`(?i)\bTGT\s*:\s*` + number)

	// BUY RELIANCE AT 2500 SL 2400 TGT 2600
	simple = regexp.MustCompile(`(?i)\b(BUY|SELL)\s+([A-Z0-9]+)\s+(?:AT\s+)?` + number + `\s+(?:SL\s+)?` + number + `\s+(?:TGT|TARGET)\s+` + number)
)

// Parse extracts a signal from text. The option grammar is tried before the
// simple one; the first match wins. ok is false when the text carries no
// actionable instruction, which is not an error.
//
// The returned signal has no id or timestamp; see NewSignal.
func Parse(text string) (sig types.Signal, ok bool) {
	if sig, ok = parseOption(text); ok {
		return sig, true
	}
	return parseSimple(text)
}

func parseOption(text string) (types.Signal, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	first := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			first = i
			break
		}
	}
	if first < 0 {
		return types.Signal{}, false
	}

	header := optionHeader.FindStringSubmatch(strings.TrimSpace(lines[first]))
	if header == nil {
		return types.Signal{}, false
	}

	rest := strings.Join(lines[first+1:], "\n")
	above, ok1 := findNumber(optionAbove, rest)
	sl, ok2 := findNumber(optionSL, rest)
	tgt, ok3 := findNumber(optionTarget, rest)
	if !ok1 || !ok2 || !ok3 {
		return types.Signal{}, false
	}

	return types.Signal{
		Symbol:       header[1],
		Action:       types.Buy,
		Kind:         types.Option,
		TriggerPrice: &above,
		StopLoss:     sl,
		Target:       tgt,
	}, true
}

func parseSimple(text string) (types.Signal, bool) {
	m := simple.FindStringSubmatch(text)
	if m == nil {
		return types.Signal{}, false
	}

	price, err1 := decimal.NewFromString(m[3])
	sl, err2 := decimal.NewFromString(m[4])
	tgt, err3 := decimal.NewFromString(m[5])
	if err1 != nil || err2 != nil || err3 != nil {
		return types.Signal{}, false
	}

	return types.Signal{
		Symbol:       m[2],
		Action:       types.Action(strings.ToUpper(m[1])),
		Kind:         types.Equity,
		TriggerPrice: &price,
		StopLoss:     sl,
		Target:       tgt,
	}, true
}

func findNumber(re *regexp.Regexp, text string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// NewSignal stamps a fresh id and creation time onto a parsed signal.
func NewSignal(sig types.Signal, now time.Time) types.Signal {
	sig.ID = uuid.NewString()
	sig.Timestamp = now
	return sig
}

// KindForSymbol infers the signal kind from the symbol's suffix. Used when a
// stored row predates the kind column.
func KindForSymbol(symbol string) types.Kind {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, " CE") || strings.HasSuffix(s, " PE") {
		return types.Option
	}
	return types.Equity
}
