package engineobs

import (
	"context"
	"time"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/trace"
	"autotrade/internal/types"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

type poller interface {
	SetPoller(poll func(context.Context) (int, error))
}

// Wrap decorates eng. When eng runs its own poll loop and accepts a poller,
// the loop is pointed at the decorated PollOnce.
func Wrap(eng interfaces.Engine) interfaces.Engine {
	oe := &observableEngine{
		engine: eng,
	}
	if p, ok := eng.(poller); ok {
		p.SetPoller(oe.PollOnce)
	}
	return oe
}

func (oe *observableEngine) PollOnce(ctx context.Context) (int, error) {
	ctx, span := trace.StartSpan(ctx, "engine.PollOnce")
	defer span.End()

	start := time.Now()
	n, err := oe.engine.PollOnce(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Signal poll failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return n, err
	}

	if n > 0 {
		logger.InfoSkip(ctx, 1, "New signals picked up",
			"count", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return n, nil
}

func (oe *observableEngine) Run(ctx context.Context) error {
	logger.InfoSkip(ctx, 1, "Dispatch engine starting")
	err := oe.engine.Run(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Dispatch engine stopped with error", err)
		return err
	}
	logger.InfoSkip(ctx, 1, "Dispatch engine stopped")
	return nil
}

func (oe *observableEngine) Execute(ctx context.Context, sig types.Signal) types.Outcome {
	ctx, span := trace.StartSpan(ctx, "engine.Execute", oteltrace.WithAttributes(
		attribute.String("signal_id", sig.ID),
	))
	defer span.End()

	out := oe.engine.Execute(ctx, sig)
	submitted, failed := out.Counts()
	logger.InfoSkip(ctx, 1, "Signal flow finished",
		"signal_id", sig.ID,
		"symbol", sig.Symbol,
		"state", out.State,
		"submitted", submitted,
		"failed", failed,
		"duration_ms", out.Finished.Sub(out.Started).Milliseconds(),
	)
	return out
}

func (oe *observableEngine) Cancel(signalID string) bool {
	ok := oe.engine.Cancel(signalID)
	logger.InfoSkip(context.Background(), 1, "Cancel requested", "signal_id", signalID, "cancelled", ok)
	return ok
}

func (oe *observableEngine) Active() []types.ActiveFlow {
	return oe.engine.Active()
}

func (oe *observableEngine) Wait() {
	oe.engine.Wait()
}

func (oe *observableEngine) Shutdown(ctx context.Context) error {
	start := time.Now()
	active := len(oe.engine.Active())
	err := oe.engine.Shutdown(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Engine shutdown timed out", err, "active", active)
		return err
	}
	logger.InfoSkip(ctx, 1, "Engine shut down",
		"flows_at_shutdown", active,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
