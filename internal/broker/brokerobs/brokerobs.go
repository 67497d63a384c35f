package brokerobs

import (
	"context"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/trace"
	"autotrade/internal/types"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	account string
	broker  interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps an account's broker with observability middleware
func Wrap(account string, broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		account: account,
		broker:  broker,
	}
}

func (ob *observableBroker) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	attrs = append(attrs, attribute.String("account", ob.account))
	return trace.StartSpan(ctx, name, oteltrace.WithAttributes(attrs...))
}

// ResolveSymbol resolves an instrument with observability
func (ob *observableBroker) ResolveSymbol(ctx context.Context, symbol string) (types.Instrument, error) {
	ctx, span := ob.span(ctx, "broker.ResolveSymbol", attribute.String("symbol", symbol))
	defer span.End()

	inst, err := ob.broker.ResolveSymbol(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to resolve symbol", err, "account", ob.account, "symbol", symbol)
		return types.Instrument{}, err
	}
	return inst, nil
}

// LatestPrice returns the last traded price with observability. Missing
// quotes are expected while watching, so they log at debug.
func (ob *observableBroker) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, span := ob.span(ctx, "broker.LatestPrice", attribute.String("symbol", symbol))
	defer span.End()

	price, err := ob.broker.LatestPrice(ctx, symbol)
	if err != nil {
		logger.DebugSkip(ctx, 1, "Price unavailable", "account", ob.account, "symbol", symbol, "error", err)
		return decimal.Zero, err
	}

	logger.DebugSkip(ctx, 1, "Price fetched", "account", ob.account, "symbol", symbol, "price", price.String())
	return price, nil
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, order types.Order) (types.OrderResp, error) {
	ctx, span := ob.span(ctx, "broker.PlaceOrder",
		attribute.String("signal_id", order.SignalID),
		attribute.String("tradingsymbol", order.Instrument.TradingSymbol),
	)
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"account", ob.account,
		"signal_id", order.SignalID,
		"tradingsymbol", order.Instrument.TradingSymbol,
		"side", order.Side,
		"qty", order.Qty,
		"order_type", order.Type,
		"tag", order.Tag,
	)

	resp, err := ob.broker.PlaceOrder(ctx, order)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"account", ob.account,
			"signal_id", order.SignalID,
			"tradingsymbol", order.Instrument.TradingSymbol,
			"qty", order.Qty,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"account", ob.account,
		"signal_id", order.SignalID,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}

// Stop forwards to the wrapped broker when it holds resources
func (ob *observableBroker) Stop() {
	if s, ok := ob.broker.(interface{ Stop() }); ok {
		s.Stop()
	}
}
