// Package signalstore implements the durable signal log shared by the loader
// and dispatcher processes.
package signalstore

import (
	"fmt"
	"os"

	"autotrade/internal/interfaces"
	"autotrade/internal/store"
)

// Open returns the backend selected by cfg.Store.Backend.
func Open(cfg *store.Config) (interfaces.SignalStore, error) {
	switch cfg.Store.Backend {
	case store.BackendCSV:
		return NewCSV(cfg.Store.Path), nil
	case store.BackendPostgres:
		dsn := os.Getenv(cfg.Store.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("%s is not set", cfg.Store.DSNEnv)
		}
		return NewPostgres(dsn, cfg.Store.Table)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
