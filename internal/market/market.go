// Package market standardizes the value types shared between the feed,
// engine, and paper-trading layers.
package market

import "time"

// Observation is one instrument's price sample at a point in time.
type Observation struct {
	Symbol string    `json:"symbol"`
	Ts     time.Time `json:"ts"`
	Price  float64   `json:"price"` // close of the sampled candle
	Open   float64   `json:"open,omitempty"`
	High   float64   `json:"high,omitempty"`
	Low    float64   `json:"low,omitempty"`
	Volume float64   `json:"volume,omitempty"`
}

// SignalKind classifies the engine's decision for one evaluation cycle.
type SignalKind string

const (
	EnterLong  SignalKind = "ENTER_LONG"
	ExitLong   SignalKind = "EXIT_LONG"
	EnterShort SignalKind = "ENTER_SHORT"
	ExitShort  SignalKind = "EXIT_SHORT"
	Hold       SignalKind = "HOLD"
)

// Directional reports whether the signal requests a ledger mutation.
func (k SignalKind) Directional() bool { return k != Hold && k != "" }

// OrderSide is the taker side of the simulated fill a signal produces.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderSide maps a signal to the fill side it executes as. Opening a
// short and closing a long both sell; the other two buy.
func (k SignalKind) OrderSide() OrderSide {
	switch k {
	case EnterLong, ExitShort:
		return Buy
	case EnterShort, ExitLong:
		return Sell
	default:
		return ""
	}
}

// Signal is the engine's decision plus the indicator readings behind it.
// HOLD is a first-class signal so that "no decision" stays auditable.
type Signal struct {
	Symbol     string             `json:"symbol"`
	Ts         time.Time          `json:"ts"`
	Kind       SignalKind         `json:"kind"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason,omitempty"`
}

// Side enumerates position direction. Flat is a valid state, not an absence.
type Side string

const (
	Flat  Side = "FLAT"
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign maps a side to its mark-to-market multiplier.
func (s Side) Sign() float64 {
	switch s {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// PositionView is the read-only position context supplied to the engine.
// The paper trader owns the underlying position; this is a copy.
type PositionView struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Qty      float64   `json:"qty"`
	AvgEntry float64   `json:"avg_entry"`
	EntryTs  time.Time `json:"entry_ts"`
}
