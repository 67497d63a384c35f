package zerodha

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"autotrade/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

var ist = time.FixedZone("IST", 19800)

// bseIndices trade their options on BFO rather than NFO.
var bseIndices = map[string]bool{"SENSEX": true, "BANKEX": true}

// instrumentCache holds one instrument dump per exchange, refreshed once per
// trading day, plus the symbol lookups already resolved from it.
type instrumentCache struct {
	dumps    map[string]instrumentDump
	resolved map[string]resolution
	mu       sync.RWMutex
}

// resolution is a symbol lookup, valid only on the IST day it was made.
type resolution struct {
	day  string
	inst types.Instrument
}

func istDay(t time.Time) string {
	return t.In(ist).Format("2006-01-02")
}

type instrumentDump struct {
	day         string
	instruments kiteconnect.Instruments
}

func newInstrumentCache() *instrumentCache {
	return &instrumentCache{
		dumps:    make(map[string]instrumentDump),
		resolved: make(map[string]resolution),
	}
}

// lookup returns a resolution made earlier on now's IST day. Contracts
// expire overnight, so older resolutions are misses.
func (c *instrumentCache) lookup(symbol string, now time.Time) (types.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.resolved[symbol]
	if !ok || r.day != istDay(now) {
		return types.Instrument{}, false
	}
	return r.inst, true
}

func (c *instrumentCache) remember(symbol string, inst types.Instrument, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolved[symbol] = resolution{day: istDay(now), inst: inst}
}

// dump returns the cached instruments of exchange, calling fetch when the
// cache is empty or from an earlier day.
func (c *instrumentCache) dump(exchange string, now time.Time, fetch func(string) (kiteconnect.Instruments, error)) (kiteconnect.Instruments, error) {
	day := istDay(now)

	c.mu.RLock()
	d, ok := c.dumps[exchange]
	c.mu.RUnlock()
	if ok && d.day == day {
		return d.instruments, nil
	}

	instruments, err := fetch(exchange)
	if err != nil {
		return nil, fmt.Errorf("fetch %s instruments: %w", exchange, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, r := range c.resolved {
		if r.day != day {
			delete(c.resolved, k)
		}
	}
	c.dumps[exchange] = instrumentDump{day: day, instruments: instruments}
	return instruments, nil
}

// normalizeSymbol upper-cases and collapses runs of spaces.
func normalizeSymbol(symbol string) string {
	return strings.Join(strings.Fields(strings.ToUpper(symbol)), " ")
}

// optionQuery is a parsed "NAME STRIKE CE|PE" symbol.
type optionQuery struct {
	name   string
	strike float64
	kind   string
}

func parseOptionSymbol(symbol string) (optionQuery, bool) {
	parts := strings.Fields(normalizeSymbol(symbol))
	if len(parts) < 3 {
		return optionQuery{}, false
	}
	kind := parts[len(parts)-1]
	if kind != "CE" && kind != "PE" {
		return optionQuery{}, false
	}
	strike, err := strconv.ParseFloat(parts[len(parts)-2], 64)
	if err != nil {
		return optionQuery{}, false
	}
	return optionQuery{
		name:   strings.Join(parts[:len(parts)-2], " "),
		strike: strike,
		kind:   kind,
	}, true
}

func optionExchange(q optionQuery, fallback string) string {
	if bseIndices[q.name] {
		return "BFO"
	}
	return fallback
}

// matchOption picks the contract with the nearest expiry that has not passed.
// A tradingsymbol equal to the symbol with spaces removed also matches.
func matchOption(instruments kiteconnect.Instruments, symbol string, q optionQuery, now time.Time) (kiteconnect.Instrument, bool) {
	compact := strings.ReplaceAll(normalizeSymbol(symbol), " ", "")
	today := istDay(now)

	var best kiteconnect.Instrument
	found := false
	for _, inst := range instruments {
		if strings.EqualFold(inst.Tradingsymbol, compact) {
			return inst, true
		}
		if !strings.EqualFold(inst.Name, q.name) || !strings.EqualFold(inst.InstrumentType, q.kind) {
			continue
		}
		if inst.StrikePrice != q.strike {
			continue
		}
		if istDay(inst.Expiry.Time) < today {
			continue
		}
		if !found || inst.Expiry.Time.Before(best.Expiry.Time) {
			best = inst
			found = true
		}
	}
	return best, found
}

func matchEquity(instruments kiteconnect.Instruments, symbol string) (kiteconnect.Instrument, bool) {
	for _, inst := range instruments {
		if strings.EqualFold(inst.Tradingsymbol, symbol) {
			return inst, true
		}
	}
	return kiteconnect.Instrument{}, false
}

func toInstrument(inst kiteconnect.Instrument, display string) types.Instrument {
	return types.Instrument{
		Token:         uint32(inst.InstrumentToken),
		Exchange:      inst.Exchange,
		TradingSymbol: inst.Tradingsymbol,
		DisplayName:   display,
		LotSize:       int(inst.LotSize),
	}
}
