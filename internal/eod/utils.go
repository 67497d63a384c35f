package eod

import (
	"path/filepath"
	"time"

	"autotrade/internal/tradelog"
)

func istNow() time.Time {
	return time.Now().In(tradelog.IST)
}

func eodCSVPath(dir string, t time.Time) string {
	dateStr := t.In(tradelog.IST).Format("2006-01-02")
	return filepath.Join(dir, "eod", dateStr+".csv")
}

// marketCloseTime is 15:40 on t's day, in t's location.
func marketCloseTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 40, 0, 0, t.Location())
}
