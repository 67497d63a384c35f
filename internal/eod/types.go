package eod

import "autotrade/internal/types"

// accountRow accumulates one account's placements while the journal is read.
type accountRow struct {
	submitted int
	failed    int
	signals   map[string]struct{}
}

func (r *accountRow) tally(account string) types.AccountTally {
	return types.AccountTally{
		Account:   account,
		Submitted: r.submitted,
		Failed:    r.failed,
		Signals:   len(r.signals),
	}
}
