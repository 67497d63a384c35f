package interfaces

import (
	"context"

	"autotrade/internal/types"
)

// SignalStore is the durable append-only signal log.
type SignalStore interface {
	// Append durably persists a new signal, creating the backing medium on first use.
	Append(ctx context.Context, sig types.Signal) error

	// LoadUnprocessed returns every stored signal whose id is not in known,
	// in insertion order. A missing backing medium yields zero signals.
	LoadUnprocessed(ctx context.Context, known map[string]struct{}) ([]types.Signal, error)

	Close() error
}
