package zerodha

import (
	"context"
	"sync"
	"time"

	"autotrade/internal/logger"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

type quote struct {
	price float64
	at    time.Time
}

// quoteStream keeps the last traded price of every subscribed instrument from
// the Kite websocket. Quotes older than maxAge are not served.
type quoteStream struct {
	apiKey      string
	accessToken string
	maxAge      time.Duration

	start sync.Once

	mu         sync.RWMutex
	ticker     *kiteticker.Ticker
	stopped    bool
	quotes     map[uint32]quote
	subscribed map[uint32]bool
	connected  bool
}

func newQuoteStream(apiKey, accessToken string, maxAge time.Duration) *quoteStream {
	return &quoteStream{
		apiKey:      apiKey,
		accessToken: accessToken,
		maxAge:      maxAge,
		quotes:      make(map[uint32]quote),
		subscribed:  make(map[uint32]bool),
	}
}

func (qs *quoteStream) serve(ctx context.Context) {
	qs.start.Do(func() {
		qs.mu.Lock()
		defer qs.mu.Unlock()
		if qs.stopped {
			return
		}

		t := kiteticker.New(qs.apiKey, qs.accessToken)
		qs.setupEventHandlers(t)
		qs.ticker = t

		go func() {
			logger.Info(ctx, "Starting Kite quote stream")
			t.Serve()
		}()
	})
}

// stop closes the websocket. A stream stopped before first use never connects.
func (qs *quoteStream) stop() {
	qs.mu.Lock()
	t := qs.ticker
	qs.stopped = true
	qs.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}

// price starts the stream on first use and subscribes token. It reports
// false until a fresh tick for token has arrived.
func (qs *quoteStream) price(ctx context.Context, token uint32) (float64, bool) {
	qs.serve(ctx)
	qs.want(ctx, token)
	return qs.lookup(token, time.Now())
}

func (qs *quoteStream) want(ctx context.Context, token uint32) {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.subscribed[token] {
		return
	}
	qs.subscribed[token] = true
	if qs.connected {
		qs.subscribe(ctx, []uint32{token})
	}
}

// subscribe must be called with mu held.
func (qs *quoteStream) subscribe(ctx context.Context, tokens []uint32) {
	if err := qs.ticker.Subscribe(tokens); err != nil {
		logger.Warn(ctx, "Quote stream subscribe failed", "tokens", tokens, "error", err)
		return
	}
	if err := qs.ticker.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		logger.Warn(ctx, "Quote stream set mode failed", "tokens", tokens, "error", err)
	}
}

func (qs *quoteStream) lookup(token uint32, now time.Time) (float64, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	q, ok := qs.quotes[token]
	if !ok || q.price <= 0 || now.Sub(q.at) > qs.maxAge {
		return 0, false
	}
	return q.price, true
}

func (qs *quoteStream) record(token uint32, price float64, at time.Time) {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	qs.quotes[token] = quote{price: price, at: at}
}
