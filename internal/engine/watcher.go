package engine

import (
	"context"
	"time"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/metrics"
	"autotrade/internal/types"

	"github.com/shopspring/decimal"
)

// watchTrigger polls the reference broker until the last traded price reaches
// the signal's trigger. A failed quote is retried after the backoff instead of
// the watch interval. It returns ErrSignalExpired once MaxWait has passed and
// ErrSignalCancelled when ctx is done.
func (e *Engine) watchTrigger(ctx context.Context, ref interfaces.Broker, account string, sig types.Signal) (decimal.Decimal, error) {
	trigger := *sig.TriggerPrice

	var deadline <-chan time.Time
	if e.opts.MaxWait > 0 {
		t := time.NewTimer(e.opts.MaxWait)
		defer t.Stop()
		deadline = t.C
	}

	metrics.WatchesActive.Inc()
	defer metrics.WatchesActive.Dec()

	logger.Signal(ctx, "WATCHING", sig.ID, sig.Symbol,
		"trigger", trigger.String(),
		"reference_account", account,
		"max_wait", e.opts.MaxWait.String(),
	)

	wait := time.NewTimer(0)
	defer wait.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return decimal.Zero, types.ErrSignalCancelled
		case <-deadline:
			return decimal.Zero, types.ErrSignalExpired
		case <-wait.C:
		}

		price, err := ref.LatestPrice(ctx, sig.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return decimal.Zero, types.ErrSignalCancelled
			}
			logger.Debug(ctx, "Price unavailable, retrying",
				"signal_id", sig.ID,
				"symbol", sig.Symbol,
				"account", account,
				"backoff", e.opts.RetryBackoff.String(),
				"error", err,
			)
			wait.Reset(e.opts.RetryBackoff)
			continue
		}

		polls++
		if price.GreaterThanOrEqual(trigger) {
			logger.Signal(ctx, "TRIGGERED", sig.ID, sig.Symbol,
				"price", price.String(),
				"trigger", trigger.String(),
				"polls", polls,
			)
			return price, nil
		}

		logger.Debug(ctx, "Below trigger",
			"signal_id", sig.ID,
			"symbol", sig.Symbol,
			"price", price.String(),
			"trigger", trigger.String(),
		)
		wait.Reset(e.opts.WatchInterval)
	}
}
