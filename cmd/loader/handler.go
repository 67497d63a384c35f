package main

import (
	"context"
	"fmt"
	"time"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/metrics"
	"autotrade/internal/parser"
	"autotrade/internal/telegram"
)

// signalWriter parses each message and appends the resulting signal to the
// store. Messages that carry no signal are counted and dropped.
func signalWriter(st interfaces.SignalStore, now func() time.Time) telegram.Handler {
	return func(ctx context.Context, text string) error {
		parsed, ok := parser.Parse(text)
		if !ok {
			metrics.MessagesIgnored.Inc()
			logger.Debug(ctx, "Message carries no signal", "length", len(text))
			return nil
		}

		sig := parser.NewSignal(parsed, now())
		if err := st.Append(ctx, sig); err != nil {
			return fmt.Errorf("append signal %s (%s): %w", sig.ID, sig.Symbol, err)
		}
		metrics.SignalsParsed.WithLabelValues(string(sig.Kind)).Inc()

		trigger := "MARKET"
		if sig.TriggerPrice != nil {
			trigger = sig.TriggerPrice.String()
		}
		logger.Signal(ctx, "STORED", sig.ID, sig.Symbol,
			"action", sig.Action,
			"kind", sig.Kind,
			"trigger", trigger,
		)
		return nil
	}
}
