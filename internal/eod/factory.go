package eod

import (
	"autotrade/internal/interfaces"
)

// NewSummarizer summarises the journals kept under dir.
func NewSummarizer(dir string) interfaces.DaySummarizer {
	return &eodSummarizer{dir: dir, now: istNow}
}
