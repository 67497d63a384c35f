package interfaces

import (
	"context"

	"autotrade/internal/types"

	"github.com/shopspring/decimal"
)

// Broker is the per-account adapter the dispatch engine places orders through.
type Broker interface {
	// ResolveSymbol maps a free-text symbol to a tradable instrument.
	// Returns types.ErrSymbolNotFound when nothing matches.
	ResolveSymbol(ctx context.Context, symbol string) (types.Instrument, error)

	// LatestPrice returns the last traded price for a symbol.
	// Returns types.ErrPriceUnavailable when no quote is available right now.
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// PlaceOrder submits an order and returns the broker response.
	PlaceOrder(ctx context.Context, order types.Order) (types.OrderResp, error)
}
