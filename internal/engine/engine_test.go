package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autotrade/internal/accounts"
	"autotrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker serves prices from a script; the last entry repeats.
type fakeBroker struct {
	mu         sync.Mutex
	prices     []any // decimal.Decimal or error
	priceCalls int
	resolveErr error
	placeErr   error
	orders     []types.Order
	events     []string
}

func (b *fakeBroker) ResolveSymbol(_ context.Context, symbol string) (types.Instrument, error) {
	if b.resolveErr != nil {
		return types.Instrument{}, b.resolveErr
	}
	return types.Instrument{Exchange: "NSE", TradingSymbol: symbol}, nil
}

func (b *fakeBroker) LatestPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "price")
	if len(b.prices) == 0 {
		return decimal.Zero, types.ErrPriceUnavailable
	}
	i := b.priceCalls
	if i >= len(b.prices) {
		i = len(b.prices) - 1
	}
	b.priceCalls++
	switch v := b.prices[i].(type) {
	case error:
		return decimal.Zero, v
	default:
		return v.(decimal.Decimal), nil
	}
}

func (b *fakeBroker) PlaceOrder(_ context.Context, o types.Order) (types.OrderResp, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "place")
	if b.placeErr != nil {
		return types.OrderResp{}, b.placeErr
	}
	b.orders = append(b.orders, o)
	return types.OrderResp{OrderID: "OID-" + o.SignalID, Status: "PLACED"}, nil
}

func (b *fakeBroker) placed() []types.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Order(nil), b.orders...)
}

type memStore struct {
	mu   sync.Mutex
	sigs []types.Signal
	err  error
}

func (s *memStore) Append(_ context.Context, sig types.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sigs = append(s.sigs, sig)
	return nil
}

func (s *memStore) LoadUnprocessed(_ context.Context, known map[string]struct{}) ([]types.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []types.Signal
	for _, sig := range s.sigs {
		if _, ok := known[sig.ID]; !ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

type recorder struct {
	mu       sync.Mutex
	outcomes []types.Outcome
}

func (r *recorder) Report(_ context.Context, o types.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) byID() map[string]types.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[string]types.Outcome, len(r.outcomes))
	for _, o := range r.outcomes {
		m[o.Signal.ID] = o
	}
	return m
}

func testOptions() Options {
	return Options{
		PollInterval:     10 * time.Millisecond,
		WatchInterval:    time.Millisecond,
		RetryBackoff:     time.Millisecond,
		PlacementTimeout: time.Second,
		LimitOffset:      decimal.NewFromInt(1),
		Product:          "MIS",
		Validity:         "DAY",
		Tag:              "autotrade",
	}
}

func registry(brokers ...*fakeBroker) *accounts.Registry {
	accts := make([]accounts.Account, len(brokers))
	for i, b := range brokers {
		accts[i] = accounts.Account{
			Config: types.AccountConfig{Name: []string{"acct1", "acct2", "acct3", "acct4"}[i]},
			Broker: b,
		}
	}
	return accounts.New(accts...)
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func marketSignal(id, symbol string) types.Signal {
	return types.Signal{ID: id, Symbol: symbol, Action: types.Buy, Kind: types.Equity, Timestamp: time.Now()}
}

func triggerSignal(id, symbol, trigger string) types.Signal {
	sig := marketSignal(id, symbol)
	p := dec(trigger)
	sig.TriggerPrice = &p
	return sig
}

func TestFanOutIsolatesAccountFailures(t *testing.T) {
	a, b, c := &fakeBroker{}, &fakeBroker{placeErr: errors.New("rejected: margin")}, &fakeBroker{}
	rec := &recorder{}
	e := New(testOptions(), &memStore{}, registry(a, b, c), rec)

	out := e.Execute(context.Background(), marketSignal("s1", "RELIANCE"))
	require.Equal(t, types.StateDispatched, out.State)
	submitted, failed := out.Counts()
	assert.Equal(t, 2, submitted)
	assert.Equal(t, 1, failed)

	require.Len(t, out.Placements, 3)
	assert.Equal(t, "acct2", out.Placements[1].Account)
	assert.Equal(t, types.Failed, out.Placements[1].Status)
	assert.ErrorContains(t, out.Placements[1].Err, "margin")
	assert.Equal(t, "OID-s1", out.Placements[0].Resp.OrderID)

	// the engine keeps going
	out = e.Execute(context.Background(), marketSignal("s2", "TCS"))
	assert.Equal(t, types.StateDispatched, out.State)
	assert.Len(t, a.placed(), 2)
	assert.Len(t, c.placed(), 2)
	assert.Len(t, rec.byID(), 2)
}

func TestSymbolNotFoundFailsOnlyThatAccount(t *testing.T) {
	a := &fakeBroker{}
	b := &fakeBroker{resolveErr: types.ErrSymbolNotFound}
	e := New(testOptions(), &memStore{}, registry(a, b), nil)

	out := e.Execute(context.Background(), marketSignal("s1", "ODDSYM"))
	assert.Equal(t, types.Submitted, out.Placements[0].Status)
	assert.Equal(t, types.Failed, out.Placements[1].Status)
	assert.ErrorIs(t, out.Placements[1].Err, types.ErrSymbolNotFound)
	assert.Empty(t, b.events, "no order after failed resolution")
}

func TestTriggerFiresAfterFirstPollAtOrAbove(t *testing.T) {
	const below = 4
	ref := &fakeBroker{prices: []any{dec("180"), dec("182.5"), dec("184"), dec("184.95"), dec("185")}}
	other := &fakeBroker{}
	e := New(testOptions(), &memStore{}, registry(ref, other), nil)

	out := e.Execute(context.Background(), triggerSignal("s1", "NIFTY 26100 PE", "185"))
	require.Equal(t, types.StateDispatched, out.State)

	assert.Equal(t, below+1, ref.priceCalls)
	assert.Equal(t, []string{"price", "price", "price", "price", "price", "place"}, ref.events)
	assert.Equal(t, []string{"place"}, other.events)
	require.Len(t, other.placed(), 1)

	o := other.placed()[0]
	assert.Equal(t, types.OrderStopLimit, o.Type)
	assert.True(t, o.TriggerPrice.Equal(dec("185")))
	assert.True(t, o.LimitPrice.Equal(dec("186")))
	assert.Equal(t, 25, o.Qty)
}

func TestTriggerRetriesUnavailablePrice(t *testing.T) {
	ref := &fakeBroker{prices: []any{types.ErrPriceUnavailable, errors.New("timeout"), dec("2600")}}
	e := New(testOptions(), &memStore{}, registry(ref), nil)

	out := e.Execute(context.Background(), triggerSignal("s1", "RELIANCE", "2500"))
	require.Equal(t, types.StateDispatched, out.State)
	assert.Equal(t, 3, ref.priceCalls)
	assert.Len(t, ref.placed(), 1)
}

func TestNonPositiveTriggerGoesToMarket(t *testing.T) {
	ref := &fakeBroker{}
	e := New(testOptions(), &memStore{}, registry(ref), nil)

	out := e.Execute(context.Background(), triggerSignal("s1", "ITC", "0"))
	require.Equal(t, types.StateDispatched, out.State)
	assert.Zero(t, ref.priceCalls)
	require.Len(t, ref.placed(), 1)
	assert.Equal(t, types.OrderMarket, ref.placed()[0].Type)
}

func TestMaxWaitExpiresWithoutOrders(t *testing.T) {
	ref := &fakeBroker{prices: []any{dec("100")}}
	opts := testOptions()
	opts.MaxWait = 20 * time.Millisecond
	rec := &recorder{}
	e := New(opts, &memStore{}, registry(ref), rec)

	out := e.Execute(context.Background(), triggerSignal("s1", "SBIN", "600"))
	assert.Equal(t, types.StateExpired, out.State)
	assert.ErrorIs(t, out.Err, types.ErrSignalExpired)
	assert.Empty(t, ref.placed())
	assert.Equal(t, types.StateExpired, rec.byID()["s1"].State)
}

func TestNoAccounts(t *testing.T) {
	rec := &recorder{}
	e := New(testOptions(), &memStore{}, accounts.New(), rec)

	out := e.Execute(context.Background(), marketSignal("s1", "SBIN"))
	assert.Equal(t, types.StateNoAccounts, out.State)
	assert.ErrorIs(t, out.Err, types.ErrNoAccounts)
	assert.Len(t, rec.byID(), 1)
}

func TestPollOnceDeliversEachSignalOnce(t *testing.T) {
	ctx := context.Background()
	ref := &fakeBroker{}
	st := &memStore{}
	require.NoError(t, st.Append(ctx, marketSignal("s1", "SBIN")))
	require.NoError(t, st.Append(ctx, marketSignal("s2", "TCS")))
	require.NoError(t, st.Append(ctx, marketSignal("s2", "TCS")))

	e := New(testOptions(), st, registry(ref), nil)

	n, err := e.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, st.Append(ctx, marketSignal("s3", "INFY")))
	n, err = e.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e.Wait()
	assert.Len(t, ref.placed(), 3)
	assert.Empty(t, e.Active())
}

func TestPollOnceStoreError(t *testing.T) {
	st := &memStore{err: errors.New("connection refused")}
	e := New(testOptions(), st, registry(&fakeBroker{}), nil)

	n, err := e.PollOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestSeedSkipsHistory(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	require.NoError(t, st.Append(ctx, marketSignal("old1", "SBIN")))
	require.NoError(t, st.Append(ctx, marketSignal("old2", "TCS")))

	e := New(testOptions(), st, registry(&fakeBroker{}), nil)
	require.NoError(t, e.Seed(ctx))
	n, err := e.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	opts := testOptions()
	opts.ReplayOnStart = true
	replay := New(opts, st, registry(&fakeBroker{}), nil)
	require.NoError(t, replay.Seed(ctx))
	n, err = replay.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	replay.Wait()
}

func TestCancelWatchingFlow(t *testing.T) {
	ctx := context.Background()
	ref := &fakeBroker{prices: []any{dec("10")}}
	st := &memStore{}
	require.NoError(t, st.Append(ctx, triggerSignal("s1", "SBIN", "600")))
	rec := &recorder{}
	e := New(testOptions(), st, registry(ref), rec)

	_, err := e.PollOnce(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		active := e.Active()
		return len(active) == 1 && active[0].State == types.StateWatching
	}, time.Second, time.Millisecond)

	assert.False(t, e.Cancel("unknown"))
	assert.True(t, e.Cancel("s1"))
	e.Wait()

	out := rec.byID()["s1"]
	assert.Equal(t, types.StateCancelled, out.State)
	assert.ErrorIs(t, out.Err, types.ErrSignalCancelled)
	assert.Empty(t, ref.placed())
	assert.Empty(t, e.Active())
}

func TestSupersedeSameSymbol(t *testing.T) {
	ctx := context.Background()
	ref := &fakeBroker{prices: []any{dec("10")}}
	st := &memStore{}
	require.NoError(t, st.Append(ctx, triggerSignal("old", "NIFTY 26100 PE", "185")))
	rec := &recorder{}
	opts := testOptions()
	opts.SupersedeSameSymbol = true
	e := New(opts, st, registry(ref), rec)

	_, err := e.PollOnce(ctx)
	require.NoError(t, err)

	require.NoError(t, st.Append(ctx, triggerSignal("new", "nifty 26100 pe", "190")))
	require.NoError(t, st.Append(ctx, triggerSignal("other", "BANKNIFTY 52000 CE", "300")))
	_, err = e.PollOnce(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, done := rec.byID()["old"]
		return done
	}, time.Second, time.Millisecond)
	assert.Equal(t, types.StateCancelled, rec.byID()["old"].State)

	require.Eventually(t, func() bool {
		ids := map[string]bool{}
		for _, f := range e.Active() {
			ids[f.SignalID] = true
		}
		return len(ids) == 2 && ids["new"] && ids["other"]
	}, time.Second, time.Millisecond)

	require.NoError(t, e.Shutdown(ctx))
	assert.Equal(t, types.StateCancelled, rec.byID()["new"].State)
	assert.Empty(t, ref.placed())
}

func TestShutdownLetsMarketFlowsFinish(t *testing.T) {
	ctx := context.Background()
	ref := &fakeBroker{prices: []any{dec("10")}}
	st := &memStore{}
	require.NoError(t, st.Append(ctx, triggerSignal("watch", "SBIN", "600")))
	require.NoError(t, st.Append(ctx, marketSignal("market", "TCS")))
	rec := &recorder{}
	e := New(testOptions(), st, registry(ref), rec)

	_, err := e.PollOnce(ctx)
	require.NoError(t, err)

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(sctx))

	got := rec.byID()
	require.Len(t, got, 2)
	assert.Equal(t, types.StateCancelled, got["watch"].State)
	// the market flow was either placed or stopped before dispatching, never half done
	if got["market"].State == types.StateDispatched {
		assert.Len(t, ref.placed(), 1)
	} else {
		assert.Equal(t, types.StateCancelled, got["market"].State)
		assert.Empty(t, ref.placed())
	}
}

func TestRunSeedsThenPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &memStore{}
	require.NoError(t, st.Append(ctx, marketSignal("history", "SBIN")))
	ref := &fakeBroker{}
	rec := &recorder{}
	e := New(testOptions(), st, registry(ref), rec)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// give the loop time to seed before the new signal lands
	require.Eventually(t, func() bool {
		e.pollMu.Lock()
		defer e.pollMu.Unlock()
		_, ok := e.known["history"]
		return ok
	}, time.Second, time.Millisecond)

	require.NoError(t, st.Append(ctx, marketSignal("fresh", "TCS")))
	require.Eventually(t, func() bool {
		_, ok := rec.byID()["fresh"]
		return ok
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	e.Wait()

	_, replayed := rec.byID()["history"]
	assert.False(t, replayed)
}

func TestExecuteRejectsDuplicateInFlight(t *testing.T) {
	ref := &fakeBroker{prices: []any{dec("10")}}
	e := New(testOptions(), &memStore{}, registry(ref), nil)

	sig := triggerSignal("s1", "SBIN", "600")
	go e.Execute(context.Background(), sig)
	require.Eventually(t, func() bool { return len(e.Active()) == 1 }, time.Second, time.Millisecond)

	out := e.Execute(context.Background(), sig)
	assert.ErrorIs(t, out.Err, errFlowRunning)

	require.True(t, e.Cancel("s1"))
	require.Eventually(t, func() bool { return len(e.Active()) == 0 }, time.Second, time.Millisecond)
}

func TestRunPollsThroughSetPoller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &memStore{}
	rec := &recorder{}
	e := New(testOptions(), st, registry(&fakeBroker{}), rec)

	var mu sync.Mutex
	calls := 0
	e.SetPoller(func(ctx context.Context) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return e.PollOnce(ctx)
	})

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.NoError(t, st.Append(ctx, marketSignal("s1", "TCS")))
	require.Eventually(t, func() bool {
		_, ok := rec.byID()["s1"]
		return ok
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, calls)
}
