package zerodha

import (
	"context"
	"time"

	"autotrade/internal/logger"

	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// setupEventHandlers configures the websocket callbacks
func (qs *quoteStream) setupEventHandlers(t *kiteticker.Ticker) {
	t.OnConnect(qs.onConnect)
	t.OnError(qs.onError)
	t.OnClose(qs.onClose)
	t.OnReconnect(qs.onReconnect)
	t.OnNoReconnect(qs.onNoReconnect)
	t.OnTick(qs.onTick)
}

// onConnect (re)subscribes everything asked for so far; subscriptions do not
// survive a reconnect.
func (qs *quoteStream) onConnect() {
	ctx := context.Background()
	logger.Info(ctx, "Quote stream connected")

	qs.mu.Lock()
	defer qs.mu.Unlock()

	qs.connected = true
	tokens := make([]uint32, 0, len(qs.subscribed))
	for t := range qs.subscribed {
		tokens = append(tokens, t)
	}
	if len(tokens) > 0 {
		qs.subscribe(ctx, tokens)
	}
}

func (qs *quoteStream) onError(err error) {
	logger.ErrorWithErr(context.Background(), "Quote stream error", err)
}

func (qs *quoteStream) onClose(code int, reason string) {
	qs.mu.Lock()
	qs.connected = false
	qs.mu.Unlock()

	logger.Warn(context.Background(), "Quote stream closed",
		"code", code,
		"reason", reason,
	)
}

func (qs *quoteStream) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "Quote stream reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (qs *quoteStream) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "Quote stream gave up reconnecting, falling back to LTP polling",
		"attempts", attempt,
	)
}

func (qs *quoteStream) onTick(tick models.Tick) {
	// LTP-mode ticks carry no exchange timestamp
	qs.record(tick.InstrumentToken, tick.LastPrice, time.Now())
}
