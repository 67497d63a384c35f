// Package zerodha is the Kite Connect broker adapter. In dry-run mode it never
// talks to Kite: instruments, quotes and order ids are simulated.
package zerodha

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/parser"
	"autotrade/internal/types"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// kiteClient is the part of *kiteconnect.Client the adapter uses.
type kiteClient interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
}

var _ kiteClient = (*kiteconnect.Client)(nil)

type Params struct {
	Account     string
	DryRun      bool
	APIKey      string
	AccessToken string

	EquityExchange string
	OptionExchange string

	// StreamQuotes serves LatestPrice from the websocket when a fresh tick exists.
	StreamQuotes bool

	// dry-run quotes
	Quotes    map[string]float64
	BasePrice float64
	Spread    float64
}

type Zerodha struct {
	p           Params
	kc          kiteClient
	instruments *instrumentCache
	stream      *quoteStream
	quotes      map[string]decimal.Decimal
	now         func() time.Time
}

var _ interfaces.Broker = (*Zerodha)(nil)

// NewZerodha builds an adapter. Live adapters need an api key and access token.
func NewZerodha(p Params) (*Zerodha, error) {
	if p.EquityExchange == "" {
		p.EquityExchange = "NSE"
	}
	if p.OptionExchange == "" {
		p.OptionExchange = "NFO"
	}

	var kc kiteClient
	var stream *quoteStream
	if !p.DryRun {
		if p.APIKey == "" || p.AccessToken == "" {
			return nil, errors.New("missing API key/access token")
		}
		client := kiteconnect.New(p.APIKey)
		client.SetAccessToken(p.AccessToken)
		kc = client
		if p.StreamQuotes {
			stream = newQuoteStream(p.APIKey, p.AccessToken, 10*time.Second)
		}
	}

	return newWithClient(p, kc, stream), nil
}

func newWithClient(p Params, kc kiteClient, stream *quoteStream) *Zerodha {
	quotes := make(map[string]decimal.Decimal, len(p.Quotes))
	for sym, px := range p.Quotes {
		quotes[normalizeSymbol(sym)] = decimal.NewFromFloat(px)
	}
	return &Zerodha{
		p:           p,
		kc:          kc,
		instruments: newInstrumentCache(),
		stream:      stream,
		quotes:      quotes,
		now:         time.Now,
	}
}

func (z *Zerodha) ResolveSymbol(ctx context.Context, symbol string) (types.Instrument, error) {
	key := normalizeSymbol(symbol)
	if key == "" {
		return types.Instrument{}, fmt.Errorf("%w: empty symbol", types.ErrSymbolNotFound)
	}

	if z.p.DryRun {
		return z.simulatedInstrument(key), nil
	}

	now := z.now()
	if inst, ok := z.instruments.lookup(key, now); ok {
		return inst, nil
	}

	var (
		exchange string
		match    kiteconnect.Instrument
		found    bool
	)
	if q, ok := parseOptionSymbol(key); ok {
		exchange = optionExchange(q, z.p.OptionExchange)
		dump, err := z.instruments.dump(exchange, now, z.kc.GetInstrumentsByExchange)
		if err != nil {
			return types.Instrument{}, err
		}
		match, found = matchOption(dump, key, q, now)
	} else {
		exchange = z.p.EquityExchange
		dump, err := z.instruments.dump(exchange, now, z.kc.GetInstrumentsByExchange)
		if err != nil {
			return types.Instrument{}, err
		}
		match, found = matchEquity(dump, key)
	}
	if !found {
		return types.Instrument{}, fmt.Errorf("%w: %s on %s", types.ErrSymbolNotFound, symbol, exchange)
	}

	inst := toInstrument(match, symbol)
	if inst.Exchange == "" {
		inst.Exchange = exchange
	}
	z.instruments.remember(key, inst, now)

	logger.Debug(ctx, "Symbol resolved",
		"account", z.p.Account,
		"symbol", symbol,
		"tradingsymbol", inst.TradingSymbol,
		"exchange", inst.Exchange,
		"token", inst.Token,
	)
	return inst, nil
}

func (z *Zerodha) simulatedInstrument(key string) types.Instrument {
	exchange := z.p.EquityExchange
	if parser.KindForSymbol(key) == types.Option {
		if q, ok := parseOptionSymbol(key); ok {
			exchange = optionExchange(q, z.p.OptionExchange)
		}
	}
	return types.Instrument{
		Exchange:      exchange,
		TradingSymbol: strings.ReplaceAll(key, " ", ""),
		DisplayName:   key,
	}
}

func (z *Zerodha) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if z.p.DryRun {
		if px, ok := z.quotes[normalizeSymbol(symbol)]; ok {
			return px, nil
		}
		return decimal.NewFromFloat(z.p.BasePrice + rand.Float64()*z.p.Spread).Round(2), nil
	}

	inst, err := z.ResolveSymbol(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", types.ErrPriceUnavailable, err)
	}

	if z.stream != nil && inst.Token != 0 {
		if px, ok := z.stream.price(ctx, inst.Token); ok {
			return decimal.NewFromFloat(px), nil
		}
	}

	key := inst.Exchange + ":" + inst.TradingSymbol
	ltp, err := z.kc.GetLTP(key)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", types.ErrPriceUnavailable, key, err)
	}
	q, ok := ltp[key]
	if !ok || q.LastPrice <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no quote for %s", types.ErrPriceUnavailable, key)
	}
	return decimal.NewFromFloat(q.LastPrice), nil
}

func (z *Zerodha) PlaceOrder(ctx context.Context, order types.Order) (types.OrderResp, error) {
	if z.p.DryRun {
		resp := types.OrderResp{
			OrderID: fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
			Status:  "SIMULATED",
			Message: "dry-run",
		}
		logger.Info(ctx, "Simulated order placed",
			"account", z.p.Account,
			"signal_id", order.SignalID,
			"tradingsymbol", order.Instrument.TradingSymbol,
			"side", order.Side,
			"qty", order.Qty,
			"order_type", order.Type,
			"trigger", order.TriggerPrice.String(),
			"limit", order.LimitPrice.String(),
			"order_id", resp.OrderID,
		)
		return resp, nil
	}

	params := orderParams(order)
	resp, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("kite place order: %w", err)
	}
	return types.OrderResp{OrderID: resp.OrderID, Status: "PLACED", Message: "ok"}, nil
}

// Stop closes the quote stream, if any.
func (z *Zerodha) Stop() {
	if z.stream != nil {
		z.stream.stop()
	}
}

func orderParams(order types.Order) kiteconnect.OrderParams {
	p := kiteconnect.OrderParams{
		Exchange:        order.Instrument.Exchange,
		Tradingsymbol:   order.Instrument.TradingSymbol,
		Validity:        order.Validity,
		Product:         order.Product,
		TransactionType: transactionType(order.Side),
		Quantity:        order.Qty,
		Tag:             order.Tag,
	}
	switch order.Type {
	case types.OrderStopLimit:
		p.OrderType = kiteconnect.OrderTypeSL
		p.TriggerPrice = order.TriggerPrice.InexactFloat64()
		p.Price = order.LimitPrice.InexactFloat64()
	default:
		p.OrderType = kiteconnect.OrderTypeMarket
	}
	return p
}

func transactionType(side types.Action) string {
	if side == types.Sell {
		return kiteconnect.TransactionTypeSell
	}
	return kiteconnect.TransactionTypeBuy
}
