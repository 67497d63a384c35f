package interfaces

import (
	"context"

	"autotrade/internal/types"
)

type Engine interface {
	PollOnce(ctx context.Context) (int, error)
	Run(ctx context.Context) error
	Execute(ctx context.Context, sig types.Signal) types.Outcome
	Cancel(signalID string) bool
	Active() []types.ActiveFlow
	Wait()
	Shutdown(ctx context.Context) error
}

// Reporter receives the terminal outcome of every signal flow.
type Reporter interface {
	Report(ctx context.Context, outcome types.Outcome)
}
