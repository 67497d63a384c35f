package eodobs

import (
	"context"
	"time"

	"autotrade/internal/interfaces"
	"autotrade/internal/logger"
	"autotrade/internal/trace"
	"autotrade/internal/tradelog"
	"autotrade/internal/types"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type observableSummarizer struct {
	summarizer interfaces.DaySummarizer
}

var _ interfaces.DaySummarizer = (*observableSummarizer)(nil)

func Wrap(summarizer interfaces.DaySummarizer) interfaces.DaySummarizer {
	return &observableSummarizer{
		summarizer: summarizer,
	}
}

// Summarize logs one line per account and a TOTAL line, and puts the day's
// counts on the span.
func (s *observableSummarizer) Summarize(ctx context.Context, day time.Time) (types.DaySummary, error) {
	ctx, span := trace.StartSpan(ctx, "eod.Summarize", oteltrace.WithAttributes(
		attribute.String("date", day.In(tradelog.IST).Format("2006-01-02")),
	))
	defer span.End()

	start := time.Now()
	sum, err := s.summarizer.Summarize(ctx, day)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Daily summary failed", err, "date", sum.Date)
		return sum, err
	}

	span.SetAttributes(
		attribute.Int("accounts", len(sum.Accounts)),
		attribute.Int("submitted", sum.Total.Submitted),
		attribute.Int("failed", sum.Total.Failed),
		attribute.Int("signals", sum.Total.Signals),
	)

	if sum.Path == "" {
		logger.InfoSkip(ctx, 1, "Nothing journalled, no daily summary written", "date", sum.Date)
		return sum, nil
	}

	for _, t := range sum.Accounts {
		logger.InfoSkip(ctx, 1, "Daily account tally",
			"date", sum.Date,
			"account", t.Account,
			"submitted", t.Submitted,
			"failed", t.Failed,
			"signals", t.Signals,
		)
	}
	logger.InfoSkip(ctx, 1, "Daily summary written",
		"date", sum.Date,
		"path", sum.Path,
		"accounts", len(sum.Accounts),
		"submitted", sum.Total.Submitted,
		"failed", sum.Total.Failed,
		"signals", sum.Total.Signals,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

func (s *observableSummarizer) Due() (bool, string) {
	due, path := s.summarizer.Due()
	if due {
		logger.DebugSkip(context.Background(), 1, "Daily summary due", "path", path)
	}
	return due, path
}
