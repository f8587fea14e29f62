// Package paper simulates order execution against a virtual cash ledger.
package paper

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"papertrader-go/internal/market"
)

const epsilon = 1e-9

var (
	// ErrLedgerCorrupt flags a failed internal consistency check. This is
	// the one unrecoverable error class: trading must stop rather than
	// continue on a drifted ledger.
	ErrLedgerCorrupt = errors.New("ledger invariant violated")
	// ErrPositionState flags a trade inconsistent with the current
	// position (open over open, close over flat).
	ErrPositionState = errors.New("trade inconsistent with position state")
)

// Position is one symbol's open exposure. Flat positions are not stored;
// a missing entry reads back as a Flat position.
type Position struct {
	Symbol   string      `json:"symbol"`
	Side     market.Side `json:"side"`
	Qty      float64     `json:"qty"`
	AvgEntry float64     `json:"avg_entry"`
	EntryTs  time.Time   `json:"entry_ts"`
}

// MarketValue marks the position against a price, signed by side.
func (p Position) MarketValue(mark float64) float64 {
	return p.Qty * mark * p.Side.Sign()
}

// View exposes the read-only copy handed to the signal engine.
func (p Position) View() market.PositionView {
	return market.PositionView{Symbol: p.Symbol, Side: p.Side, Qty: p.Qty, AvgEntry: p.AvgEntry, EntryTs: p.EntryTs}
}

// Trade is an immutable record of one simulated fill. The append-only
// trade sequence plus starting cash reconstructs the ledger exactly.
type Trade struct {
	ID          int64             `json:"id"`
	Symbol      string            `json:"symbol"`
	Ts          time.Time         `json:"ts"`
	Kind        market.SignalKind `json:"kind"`
	Side        market.OrderSide  `json:"side"`
	Qty         float64           `json:"qty"`
	Price       float64           `json:"price"` // fill price, slippage included
	Fees        float64           `json:"fees"`
	RealizedPnL float64           `json:"realized_pnl,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Ts     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}

// Ledger is the process-wide aggregate: cash, open positions, the
// append-only trade log, and the equity curve. The paper trader is its
// single writer; snapshot readers share the same mutex.
type Ledger struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	positions    map[string]Position
	trades       []Trade
	marks        map[string]float64
	equityCurve  []EquityPoint
}

// NewLedger initializes the ledger with its starting bankroll.
func NewLedger(startingCash float64) *Ledger {
	return &Ledger{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]Position),
		marks:        make(map[string]float64),
	}
}

// StartingCash returns the initial bankroll.
func (l *Ledger) StartingCash() float64 { return l.startingCash }

// Cash returns the free cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns the current position for a symbol; absent means Flat.
func (l *Ledger) Position(symbol string) Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[symbol]; ok {
		return pos
	}
	return Position{Symbol: symbol, Side: market.Flat}
}

// Apply mutates cash and positions for one trade atomically with the
// trade's append, assigns its sequence ID, and fills realized P&L on
// closes. The same code path serves live trading and replay, so a replayed
// log lands on identical state.
func (l *Ledger) Apply(t Trade) (Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.Qty <= 0 || t.Price <= 0 {
		return t, fmt.Errorf("%w: non-positive qty or price on %s", ErrLedgerCorrupt, t.Symbol)
	}
	notional := t.Qty * t.Price
	pos, open := l.positions[t.Symbol]

	switch t.Kind {
	case market.EnterLong, market.EnterShort:
		if open {
			return t, fmt.Errorf("%w: %s already open", ErrPositionState, t.Symbol)
		}
		side := market.Long
		if t.Kind == market.EnterShort {
			side = market.Short
			l.cash += notional // short entry credits proceeds
		} else {
			l.cash -= notional
		}
		l.cash -= t.Fees
		l.positions[t.Symbol] = Position{Symbol: t.Symbol, Side: side, Qty: t.Qty, AvgEntry: t.Price, EntryTs: t.Ts}

	case market.ExitLong, market.ExitShort:
		want := market.Long
		if t.Kind == market.ExitShort {
			want = market.Short
		}
		if !open || pos.Side != want {
			return t, fmt.Errorf("%w: %s close without matching %s position", ErrPositionState, t.Symbol, want)
		}
		realized := (t.Price-pos.AvgEntry)*t.Qty*pos.Side.Sign() - t.Fees
		if t.RealizedPnL != 0 && t.RealizedPnL != realized {
			return t, fmt.Errorf("%w: recorded pnl %.10f vs computed %.10f on %s", ErrLedgerCorrupt, t.RealizedPnL, realized, t.Symbol)
		}
		t.RealizedPnL = realized
		if pos.Side == market.Long {
			l.cash += notional
		} else {
			l.cash -= notional
		}
		l.cash -= t.Fees
		delete(l.positions, t.Symbol)

	default:
		return t, fmt.Errorf("%w: kind %q is not executable", ErrPositionState, t.Kind)
	}

	t.ID = int64(len(l.trades) + 1)
	t.Side = t.Kind.OrderSide()
	l.trades = append(l.trades, t)

	// the equity point uses the fill price as the mark so the curve never
	// shows a phantom jump between the fill and the next observation
	l.marks[t.Symbol] = t.Price
	l.equityCurve = append(l.equityCurve, EquityPoint{Ts: t.Ts, Equity: l.equityLocked()})

	if err := l.checkLocked(); err != nil {
		return t, err
	}
	return t, nil
}

// MarkPrice records the latest known price for mark-to-market equity.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	if price <= 0 || math.IsNaN(price) {
		return
	}
	l.mu.Lock()
	l.marks[symbol] = price
	l.mu.Unlock()
}

// RecordEquity appends the current equity to the curve.
func (l *Ledger) RecordEquity(ts time.Time) EquityPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	point := EquityPoint{Ts: ts, Equity: l.equityLocked()}
	l.equityCurve = append(l.equityCurve, point)
	return point
}

// Equity returns cash plus the signed market value of all open positions.
func (l *Ledger) Equity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.equityLocked()
}

func (l *Ledger) equityLocked() float64 {
	equity := l.cash
	for sym, pos := range l.positions {
		equity += pos.MarketValue(l.marks[sym])
	}
	return equity
}

func (l *Ledger) checkLocked() error {
	if math.IsNaN(l.cash) || math.IsInf(l.cash, 0) {
		return fmt.Errorf("%w: cash is not finite", ErrLedgerCorrupt)
	}
	for sym, pos := range l.positions {
		if pos.Qty <= 0 || math.IsNaN(pos.Qty) {
			return fmt.Errorf("%w: %s position qty %.10f", ErrLedgerCorrupt, sym, pos.Qty)
		}
		if pos.AvgEntry <= 0 || math.IsNaN(pos.AvgEntry) {
			return fmt.Errorf("%w: %s entry price %.10f", ErrLedgerCorrupt, sym, pos.AvgEntry)
		}
		if pos.Side != market.Long && pos.Side != market.Short {
			return fmt.Errorf("%w: %s open position with side %s", ErrLedgerCorrupt, sym, pos.Side)
		}
	}
	return nil
}

// Trades returns a copy of the append-only trade log.
func (l *Ledger) Trades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Positions returns a copy of all open positions.
func (l *Ledger) Positions() map[string]Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Position, len(l.positions))
	for sym, pos := range l.positions {
		out[sym] = pos
	}
	return out
}

// Marks returns a copy of the latest known prices.
func (l *Ledger) Marks() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.marks))
	for sym, px := range l.marks {
		out[sym] = px
	}
	return out
}

// EquityCurve returns up to the last n points; n <= 0 returns everything.
func (l *Ledger) EquityCurve(n int) []EquityPoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := 0
	if n > 0 && len(l.equityCurve) > n {
		start = len(l.equityCurve) - n
	}
	out := make([]EquityPoint, len(l.equityCurve)-start)
	copy(out, l.equityCurve[start:])
	return out
}

// View is a consistent copy of the ledger's externally visible state,
// taken under one lock so no mutation can interleave mid-read.
type View struct {
	Cash        float64
	Equity      float64
	Positions   map[string]Position
	Marks       map[string]float64
	EquityCurve []EquityPoint
}

// Snapshot captures a View; n bounds the equity-curve tail, <= 0 for all.
func (l *Ledger) Snapshot(n int) View {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[string]Position, len(l.positions))
	for sym, pos := range l.positions {
		positions[sym] = pos
	}
	marks := make(map[string]float64, len(l.marks))
	for sym, px := range l.marks {
		marks[sym] = px
	}
	start := 0
	if n > 0 && len(l.equityCurve) > n {
		start = len(l.equityCurve) - n
	}
	curve := make([]EquityPoint, len(l.equityCurve)-start)
	copy(curve, l.equityCurve[start:])

	return View{
		Cash:        l.cash,
		Equity:      l.equityLocked(),
		Positions:   positions,
		Marks:       marks,
		EquityCurve: curve,
	}
}

// Replay rebuilds a ledger from starting cash and an ordered trade log.
// The rebuilt cash and positions match the originating ledger exactly,
// which makes the JSONL trade log sufficient for crash recovery.
func Replay(startingCash float64, trades []Trade) (*Ledger, error) {
	ledger := NewLedger(startingCash)
	for _, t := range trades {
		if _, err := ledger.Apply(t); err != nil {
			return nil, fmt.Errorf("replay trade %d: %w", t.ID, err)
		}
	}
	return ledger, nil
}
