package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"autotrade/internal/accounts"
)

type probeResult struct {
	Account       string
	Symbol        string
	TradingSymbol string
	Exchange      string
	Price         string
	Err           error
}

// probe resolves each symbol and reads its LTP on every account. Nothing is
// ordered.
func probe(ctx context.Context, reg *accounts.Registry, symbols []string, timeout time.Duration) []probeResult {
	var results []probeResult
	for _, acct := range reg.Accounts() {
		for _, sym := range symbols {
			results = append(results, probeOne(ctx, acct, sym, timeout))
		}
	}
	return results
}

func probeOne(ctx context.Context, acct accounts.Account, symbol string, timeout time.Duration) probeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := probeResult{Account: acct.Name(), Symbol: symbol}
	inst, err := acct.Broker.ResolveSymbol(ctx, symbol)
	if err != nil {
		r.Err = fmt.Errorf("resolve: %w", err)
		return r
	}
	r.TradingSymbol = inst.TradingSymbol
	r.Exchange = inst.Exchange

	price, err := acct.Broker.LatestPrice(ctx, symbol)
	if err != nil {
		r.Err = fmt.Errorf("ltp: %w", err)
		return r
	}
	r.Price = price.String()
	return r
}

// report prints one line per probe and returns the number of failures.
func report(w io.Writer, results []probeResult) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tSYMBOL\tINSTRUMENT\tLTP\tSTATUS")
	failed := 0
	for _, r := range results {
		status := "OK"
		if r.Err != nil {
			status = r.Err.Error()
			failed++
		}
		inst := ""
		if r.TradingSymbol != "" {
			inst = r.Exchange + ":" + r.TradingSymbol
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Account, r.Symbol, inst, r.Price, status)
	}
	_ = tw.Flush()
	return failed
}
