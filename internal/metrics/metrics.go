// Package metrics holds the Prometheus collectors shared by the dispatcher processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "autotrade_signals_received_total", Help: "Signals read from the store and dispatched"},
	)
	SignalsParsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "autotrade_signals_parsed_total", Help: "Messages that produced a signal, by kind"},
		[]string{"kind"},
	)
	MessagesIgnored = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "autotrade_messages_ignored_total", Help: "Messages that carried no signal"},
	)
	Placements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "autotrade_placements_total", Help: "Order placements per account and result"},
		[]string{"account", "result"},
	)
	SignalsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "autotrade_signals_expired_total", Help: "Signals whose trigger watch hit the max wait"},
	)
	SignalsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "autotrade_signals_cancelled_total", Help: "Signals cancelled while watching"},
	)
	WatchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "autotrade_watches_active", Help: "Trigger watches currently running"},
	)
	StoreRowsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "autotrade_store_rows_skipped_total", Help: "Malformed signal store rows skipped"},
	)
	AccountsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "autotrade_accounts_active", Help: "Accounts loaded into the registry"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsReceived,
		SignalsParsed,
		MessagesIgnored,
		Placements,
		SignalsExpired,
		SignalsCancelled,
		WatchesActive,
		StoreRowsSkipped,
		AccountsActive,
	)
}
