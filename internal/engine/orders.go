package engine

import (
	"strings"

	"autotrade/internal/types"
)

// lotSizes is checked in order: BANKNIFTY and FINNIFTY must come before
// NIFTY, which both contain.
var lotSizes = []struct {
	index string
	qty   int
}{
	{"BANKNIFTY", 15},
	{"FINNIFTY", 25},
	{"MIDCPNIFTY", 50},
	{"NIFTY", 25},
	{"SENSEX", 10},
}

// lotSize returns the order quantity for a symbol: the lot size of the first
// index it mentions, else 1.
func lotSize(symbol string) int {
	s := strings.ToUpper(symbol)
	for _, l := range lotSizes {
		if strings.Contains(s, l.index) {
			return l.qty
		}
	}
	return 1
}

// buildOrder derives one account's order from a signal. A usable trigger
// gives a stop-limit order with limit = trigger + offset; otherwise the
// order goes at market.
func buildOrder(sig types.Signal, inst types.Instrument, opts Options) types.Order {
	o := types.Order{
		SignalID:   sig.ID,
		Instrument: inst,
		Side:       sig.Action,
		Qty:        lotSize(sig.Symbol),
		Type:       types.OrderMarket,
		Product:    opts.Product,
		Validity:   opts.Validity,
		Tag:        opts.Tag,
	}
	if sig.HasTrigger() {
		o.Type = types.OrderStopLimit
		o.TriggerPrice = *sig.TriggerPrice
		o.LimitPrice = sig.TriggerPrice.Add(opts.LimitOffset)
	}
	return o
}
