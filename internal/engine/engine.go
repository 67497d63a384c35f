package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autotrade/internal/accounts"
	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/metrics"
	"autotrade/internal/trace"
	"autotrade/internal/types"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var errFlowRunning = errors.New("signal already in flight")

// Engine polls the signal store and runs one tracked flow per new signal:
// an optional trigger watch on the reference account, then a concurrent
// placement on every account.
type Engine struct {
	opts     Options
	store    interfaces.SignalStore
	accounts *accounts.Registry
	reporter interfaces.Reporter
	now      func() time.Time

	// guarded by pollMu; only the poll loop touches it
	pollMu sync.Mutex
	known  map[string]struct{}

	// poll is what Run calls each tick; SetPoller swaps in a decorated PollOnce
	poll func(context.Context) (int, error)

	tasks *taskRegistry
	wg    sync.WaitGroup

	base context.Context
	stop context.CancelFunc
}

var _ interfaces.Engine = (*Engine)(nil)

func New(opts Options, st interfaces.SignalStore, reg *accounts.Registry, reporter interfaces.Reporter) *Engine {
	base, stop := context.WithCancel(context.Background())
	e := &Engine{
		opts:     opts,
		store:    st,
		accounts: reg,
		reporter: reporter,
		now:      time.Now,
		known:    make(map[string]struct{}),
		tasks:    newTaskRegistry(),
		base:     base,
		stop:     stop,
	}
	e.poll = e.PollOnce
	return e
}

// SetPoller replaces the function Run polls with. It must be called before Run.
func (e *Engine) SetPoller(poll func(context.Context) (int, error)) {
	e.poll = poll
}

// Seed marks every signal already in the store as processed, unless replay
// is enabled. It fails when the store cannot be read; a missing store seeds
// nothing.
func (e *Engine) Seed(ctx context.Context) error {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()

	if e.opts.ReplayOnStart {
		logger.Warn(ctx, "Replay on start enabled: stored signals will be dispatched again")
		return nil
	}

	sigs, err := e.store.LoadUnprocessed(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed processed ids: %w", err)
	}
	for _, s := range sigs {
		e.known[s.ID] = struct{}{}
	}
	logger.Info(ctx, "Processed ids seeded from store", "count", len(e.known))
	return nil
}

// Run seeds the processed set and polls the store until ctx is done. Seeding
// is retried every poll interval until the store answers, so an outage at
// startup never replays history.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		err := e.Seed(ctx)
		if err == nil {
			break
		}
		logger.Warn(ctx, "Signal store unavailable, retrying seed", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	logger.Info(ctx, "Dispatch loop started",
		"poll_interval", e.opts.PollInterval.String(),
		"accounts", e.accounts.Len(),
	)

	for {
		if _, err := e.poll(ctx); err != nil {
			logger.Warn(ctx, "Poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Dispatch loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce starts a flow for every unseen signal in store order and marks
// each id processed before its flow finishes. Flows are registered before
// this returns, so Active and Cancel see them immediately.
func (e *Engine) PollOnce(ctx context.Context) (int, error) {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()

	sigs, err := e.store.LoadUnprocessed(ctx, e.known)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, sig := range sigs {
		if _, done := e.known[sig.ID]; done {
			continue
		}
		e.known[sig.ID] = struct{}{}
		metrics.SignalsReceived.Inc()

		f, _ := e.begin(ctx, sig)
		if f == nil {
			continue
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.complete(f)
		}()
		started++
	}
	return started, nil
}

// Execute runs one signal flow to completion and reports its outcome. The
// flow outlives ctx's cancellation: it stops only through Cancel, a
// superseding signal or Shutdown.
func (e *Engine) Execute(ctx context.Context, sig types.Signal) types.Outcome {
	f, out := e.begin(ctx, sig)
	if f == nil {
		return out
	}
	return e.complete(f)
}

type flow struct {
	ctx    context.Context // detached from the caller, for logs and reports
	fctx   context.Context // cancelled by Cancel, supersede or Shutdown
	cancel context.CancelFunc
	unhook func() bool
	task   *task
	out    types.Outcome
}

// begin registers the flow and applies supersede. It returns nil when a flow
// for the same signal id is already running.
func (e *Engine) begin(ctx context.Context, sig types.Signal) (*flow, types.Outcome) {
	ctx = context.WithoutCancel(ctx)
	fctx, cancel := context.WithCancel(ctx)
	unhook := context.AfterFunc(e.base, cancel)

	out := types.Outcome{Signal: sig, State: types.StateReceived, Started: e.now()}

	t, superseded, ok := e.tasks.add(sig, cancel, out.Started, e.opts.SupersedeSameSymbol)
	if !ok {
		unhook()
		cancel()
		out.Err = errFlowRunning
		logger.Warn(ctx, "Signal already in flight", "signal_id", sig.ID, "symbol", sig.Symbol)
		return nil, out
	}

	for _, id := range superseded {
		logger.Signal(ctx, "SUPERSEDED", id, sig.Symbol, "by", sig.ID)
	}

	return &flow{ctx: ctx, fctx: fctx, cancel: cancel, unhook: unhook, task: t, out: out}, out
}

func (e *Engine) complete(f *flow) types.Outcome {
	defer f.cancel()
	defer f.unhook()
	defer e.tasks.remove(f.out.Signal.ID)

	sig := f.out.Signal
	fctx, span := trace.StartSpan(f.fctx, "engine.flow", oteltrace.WithAttributes(
		attribute.String("signal_id", sig.ID),
		attribute.String("symbol", sig.Symbol),
		attribute.String("action", string(sig.Action)),
	))
	defer span.End()

	out := e.run(fctx, f.task, f.out)
	out.Finished = e.now()
	span.SetAttributes(attribute.String("state", string(out.State)))

	if e.reporter != nil {
		e.reporter.Report(f.ctx, out)
	}
	return out
}

func (e *Engine) run(ctx context.Context, t *task, out types.Outcome) types.Outcome {
	sig := out.Signal

	trigger := ""
	if sig.TriggerPrice != nil {
		trigger = sig.TriggerPrice.String()
	}
	logger.Signal(ctx, "RECEIVED", sig.ID, sig.Symbol,
		"action", sig.Action,
		"kind", sig.Kind,
		"trigger", trigger,
		"stop_loss", sig.StopLoss.String(),
		"target", sig.Target.String(),
	)

	ref, ok := e.accounts.Reference()
	if !ok {
		out.State = types.StateNoAccounts
		out.Err = types.ErrNoAccounts
		logger.Error(ctx, "No active accounts, signal not dispatched", "signal_id", sig.ID, "symbol", sig.Symbol)
		return out
	}

	if sig.TriggerPrice != nil && !sig.HasTrigger() {
		logger.Warn(ctx, "Non-positive trigger, placing at market",
			"signal_id", sig.ID, "symbol", sig.Symbol, "trigger", trigger)
	}

	if sig.HasTrigger() {
		e.tasks.setState(t, types.StateWatching)
		if _, err := e.watchTrigger(ctx, ref.Broker, ref.Name(), sig); err != nil {
			return e.abandon(ctx, t, out, err)
		}
	}

	if ctx.Err() != nil || !e.tasks.beginDispatch(t) {
		return e.abandon(ctx, t, out, types.ErrSignalCancelled)
	}

	logger.Signal(ctx, "DISPATCHING", sig.ID, sig.Symbol, "accounts", e.accounts.Len())
	out.Placements = e.dispatch(ctx, sig)
	out.State = types.StateDispatched

	submitted, failed := out.Counts()
	logger.Signal(ctx, "DISPATCHED", sig.ID, sig.Symbol, "submitted", submitted, "failed", failed)
	return out
}

func (e *Engine) abandon(ctx context.Context, t *task, out types.Outcome, err error) types.Outcome {
	sig := out.Signal
	out.Err = err
	if errors.Is(err, types.ErrSignalExpired) {
		out.State = types.StateExpired
		metrics.SignalsExpired.Inc()
		logger.Signal(ctx, "EXPIRED", sig.ID, sig.Symbol, "max_wait", e.opts.MaxWait.String())
	} else {
		out.State = types.StateCancelled
		metrics.SignalsCancelled.Inc()
		logger.Signal(ctx, "CANCELLED", sig.ID, sig.Symbol)
	}
	e.tasks.setState(t, out.State)
	return out
}

// Cancel stops a flow that has not started placing orders.
func (e *Engine) Cancel(signalID string) bool {
	return e.tasks.cancel(signalID)
}

// Active lists in-flight flows, oldest first.
func (e *Engine) Active() []types.ActiveFlow {
	return e.tasks.active()
}

// Wait blocks until every flow started by PollOnce has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown cancels every flow that is still watching and waits for the rest
// to finish placing, or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.tasks.cancelAll()
	e.stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
