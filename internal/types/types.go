package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type Kind string

const (
	Equity Kind = "EQUITY"
	Option Kind = "OPTION"
)

// Signal is one parsed trade instruction. It is never mutated after it has
// been written to the signal store.
type Signal struct {
	ID        string
	Timestamp time.Time
	Symbol    string
	Action    Action
	Kind      Kind

	// TriggerPrice is nil when the signal asks for immediate market execution.
	TriggerPrice *decimal.Decimal
	StopLoss     decimal.Decimal
	Target       decimal.Decimal
}

// HasTrigger reports whether the signal carries a usable (strictly positive) trigger.
func (s Signal) HasTrigger() bool {
	return s.TriggerPrice != nil && s.TriggerPrice.IsPositive()
}

type Credentials struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	APISecret string `yaml:"api_secret" json:"api_secret"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
}

// AccountConfig is one record of the accounts file.
type AccountConfig struct {
	Name        string `yaml:"name" json:"name"`
	Credentials `yaml:",inline"`
	DryRun      bool   `yaml:"dry_run" json:"dry_run"`
	Exchange    string `yaml:"exchange" json:"exchange"`
}

// Instrument is a broker-side tradable resolved from a free-text symbol.
type Instrument struct {
	Token         uint32
	Exchange      string
	TradingSymbol string
	DisplayName   string
	LotSize       int
}

type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderStopLimit OrderType = "SL"
)

// Order is the ephemeral broker request built from a Signal for one account.
type Order struct {
	SignalID     string
	Instrument   Instrument
	Side         Action
	Qty          int
	Type         OrderType
	TriggerPrice decimal.Decimal
	LimitPrice   decimal.Decimal
	Product      string
	Validity     string
	Tag          string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FlowState is the engine-tracked state of one dispatched signal.
type FlowState string

const (
	StateReceived    FlowState = "RECEIVED"
	StateWatching    FlowState = "WATCHING"
	StateDispatching FlowState = "DISPATCHING"
	StateDispatched  FlowState = "DISPATCHED"
	StateExpired     FlowState = "EXPIRED"
	StateCancelled   FlowState = "CANCELLED"
	StateNoAccounts  FlowState = "NO_ACCOUNTS"
)

type PlacementStatus string

const (
	Submitted PlacementStatus = "SUBMITTED"
	Failed    PlacementStatus = "FAILED"
)

// Placement is the result of dispatching one signal to one account.
type Placement struct {
	Account string
	Order   Order
	Resp    OrderResp
	Status  PlacementStatus
	Err     error
}

// Outcome is the terminal report of one signal flow.
type Outcome struct {
	Signal     Signal
	State      FlowState
	Placements []Placement
	Err        error
	Started    time.Time
	Finished   time.Time
}

// Counts returns the number of submitted and failed placements.
func (o Outcome) Counts() (submitted, failed int) {
	for _, p := range o.Placements {
		if p.Status == Submitted {
			submitted++
		} else {
			failed++
		}
	}
	return submitted, failed
}

// ActiveFlow describes an in-flight signal flow.
type ActiveFlow struct {
	SignalID string    `json:"signal_id"`
	Symbol   string    `json:"symbol"`
	State    FlowState `json:"state"`
	Since    time.Time `json:"since"`
}

// AccountTally counts one account's placements for a day. Signals is the
// number of distinct signal ids involved.
type AccountTally struct {
	Account   string
	Submitted int
	Failed    int
	Signals   int
}

// DaySummary is the end-of-day summary for one IST date. Path is empty when
// nothing was journalled that day.
type DaySummary struct {
	Date     string
	Path     string
	Accounts []AccountTally
	Total    AccountTally
}
