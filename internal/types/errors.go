package types

import "errors"

var (
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrAccountLoad      = errors.New("account load failed")
	ErrMalformedRow     = errors.New("malformed signal row")
	ErrSignalExpired    = errors.New("signal expired before trigger")
	ErrSignalCancelled  = errors.New("signal cancelled")
	ErrNoAccounts       = errors.New("no active accounts")
)
