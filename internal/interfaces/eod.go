package interfaces

import (
	"context"
	"time"

	"autotrade/internal/types"
)

// DaySummarizer turns a day's dispatch journal into a per-account CSV.
type DaySummarizer interface {
	// Summarize writes the summary for day's IST date, replacing any earlier one.
	Summarize(ctx context.Context, day time.Time) (types.DaySummary, error)
	// Due reports whether today's summary should be written now, and its path.
	Due() (bool, string)
}
