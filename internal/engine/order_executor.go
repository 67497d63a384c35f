package engine

import (
	"context"
	"fmt"

	"autotrade/internal/accounts"
	"autotrade/internal/logger"
	"autotrade/internal/metrics"
	"autotrade/internal/types"

	"golang.org/x/sync/errgroup"
)

// dispatch places the signal on every account concurrently. One account's
// failure never affects another, and nothing is retried or rolled back.
// Placements are not cancelled once started.
func (e *Engine) dispatch(ctx context.Context, sig types.Signal) []types.Placement {
	ctx = context.WithoutCancel(ctx)
	if e.opts.PlacementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.PlacementTimeout)
		defer cancel()
	}

	accts := e.accounts.Accounts()
	results := make([]types.Placement, len(accts))

	var g errgroup.Group
	for i, acct := range accts {
		g.Go(func() error {
			results[i] = e.place(ctx, acct, sig)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// place resolves the instrument and submits one account's order.
func (e *Engine) place(ctx context.Context, acct accounts.Account, sig types.Signal) (p types.Placement) {
	p = types.Placement{Account: acct.Name(), Status: types.Failed}

	defer func() {
		if r := recover(); r != nil {
			p.Status = types.Failed
			p.Err = fmt.Errorf("placement panicked: %v", r)
		}
		e.recordPlacement(ctx, sig, p)
	}()

	inst, err := acct.Broker.ResolveSymbol(ctx, sig.Symbol)
	if err != nil {
		p.Err = fmt.Errorf("resolve %s: %w", sig.Symbol, err)
		return p
	}

	p.Order = buildOrder(sig, inst, e.opts)
	resp, err := acct.Broker.PlaceOrder(ctx, p.Order)
	if err != nil {
		p.Err = err
		return p
	}

	p.Resp = resp
	p.Status = types.Submitted
	return p
}

func (e *Engine) recordPlacement(ctx context.Context, sig types.Signal, p types.Placement) {
	metrics.Placements.WithLabelValues(p.Account, string(p.Status)).Inc()

	fields := []any{
		"order_type", p.Order.Type,
		"tradingsymbol", p.Order.Instrument.TradingSymbol,
	}
	if p.Err != nil {
		fields = append(fields, "error", p.Err)
	} else {
		fields = append(fields, "order_id", p.Resp.OrderID)
	}
	logger.Placement(ctx, p.Account, sig.ID, sig.Symbol, string(p.Status), p.Order.Qty, fields...)
}
