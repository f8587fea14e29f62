package paper

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"papertrader-go/internal/config"
	"papertrader-go/internal/market"
	"papertrader-go/internal/metrics"
	"papertrader-go/internal/risk"
	"papertrader-go/internal/util"
)

var (
	// ErrInsufficientCash rejects an entry whose cost exceeds free cash.
	// The ledger is untouched when this is returned.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrPositionLimit rejects an entry that would exceed the configured
	// per-symbol exposure cap.
	ErrPositionLimit = errors.New("position notional limit exceeded")
)

// Notifier receives trade lifecycle events. Implementations must not
// block the trading loop.
type Notifier interface {
	TradeExecuted(t Trade)
	TradeRejected(symbol, reason string)
}

// TradeRecorder persists executed trades.
type TradeRecorder interface {
	Record(t Trade) error
}

// Trader converts directional signals into simulated fills against the
// ledger. All mutations pass through one mutex inside the ledger, so a
// concurrent evaluation pass cannot interleave partial updates.
type Trader struct {
	log         zerolog.Logger
	ledger      *Ledger
	limits      risk.Limits
	notifier    Notifier
	recorders   []TradeRecorder
	sizingMode  string
	equityFrac  float64
	fixedQty    float64
	slippageBps float64
	feeBps      float64
	feeFixed    float64
}

// NewTrader wires a trader over an existing ledger.
func NewTrader(cfg config.Paper, limits risk.Limits, ledger *Ledger, log zerolog.Logger) *Trader {
	frac := cfg.EquityFrac
	if frac <= 0 || frac > 1 {
		frac = 0.1
	}
	mode := cfg.SizingMode
	if mode != "fixed_qty" {
		mode = "equity_fraction"
	}
	return &Trader{
		log:         util.Component(log, "trader"),
		ledger:      ledger,
		limits:      limits,
		sizingMode:  mode,
		equityFrac:  frac,
		fixedQty:    cfg.FixedQty,
		slippageBps: cfg.SlippageBps,
		feeBps:      cfg.FeeBps,
		feeFixed:    cfg.FeeFixed,
	}
}

// SetNotifier installs the trade event sink.
func (t *Trader) SetNotifier(n Notifier) { t.notifier = n }

// AddRecorder appends a trade persistence sink.
func (t *Trader) AddRecorder(r TradeRecorder) { t.recorders = append(t.recorders, r) }

// Ledger exposes the trader's ledger for snapshots and marking.
func (t *Trader) Ledger() *Ledger { return t.ledger }

// Apply executes one signal at the given reference price. HOLD and
// signals inconsistent with the current position are silent no-ops and
// return (nil, nil). Rejections return the sentinel error with the ledger
// unchanged; only ErrLedgerCorrupt wrapped errors are unrecoverable.
func (t *Trader) Apply(sig market.Signal, price float64) (*Trade, error) {
	if !sig.Kind.Directional() {
		return nil, nil
	}
	if price <= 0 {
		return nil, fmt.Errorf("apply %s %s: non-positive price %.8f", sig.Kind, sig.Symbol, price)
	}

	pos := t.ledger.Position(sig.Symbol)
	switch sig.Kind {
	case market.EnterLong, market.EnterShort:
		if pos.Side != market.Flat {
			t.log.Debug().Str("symbol", sig.Symbol).Str("kind", string(sig.Kind)).
				Str("side", string(pos.Side)).Msg("entry ignored, position already open")
			return nil, nil
		}
		return t.enter(sig, price)
	case market.ExitLong, market.ExitShort:
		want := market.Long
		if sig.Kind == market.ExitShort {
			want = market.Short
		}
		if pos.Side != want {
			t.log.Debug().Str("symbol", sig.Symbol).Str("kind", string(sig.Kind)).
				Str("side", string(pos.Side)).Msg("exit ignored, no matching position")
			return nil, nil
		}
		return t.exit(sig, pos, price)
	}
	return nil, nil
}

func (t *Trader) enter(sig market.Signal, price float64) (*Trade, error) {
	fill := t.fillPrice(price, sig.Kind.OrderSide())

	var qty float64
	switch t.sizingMode {
	case "fixed_qty":
		qty = t.fixedQty
	default:
		// conviction scales the base fraction between 50% and 100%
		notional := t.ledger.Equity() * t.equityFrac * (0.5 + 0.5*clamp01(sig.Confidence))
		notional = t.limits.Cap(notional)
		qty = notional / fill
	}
	if qty <= 0 {
		t.reject(sig, "zero size")
		return nil, nil
	}

	notional := qty * fill
	if !t.limits.AllowPosition(notional) {
		t.reject(sig, "position limit")
		return nil, fmt.Errorf("enter %s %s: %w", sig.Symbol, sig.Kind, ErrPositionLimit)
	}
	fees := notional*t.feeBps/10_000 + t.feeFixed

	// longs spend cash; shorts post the full notional as collateral
	cash := t.ledger.Cash()
	required := notional + fees
	if sig.Kind == market.EnterShort {
		required = notional
	}
	if required > cash+epsilon {
		t.reject(sig, "insufficient cash")
		return nil, fmt.Errorf("enter %s %s notional %.2f cash %.2f: %w",
			sig.Symbol, sig.Kind, notional, cash, ErrInsufficientCash)
	}

	return t.commit(Trade{
		Symbol: sig.Symbol,
		Ts:     sig.Ts,
		Kind:   sig.Kind,
		Qty:    qty,
		Price:  fill,
		Fees:   fees,
		Reason: sig.Reason,
	})
}

func (t *Trader) exit(sig market.Signal, pos Position, price float64) (*Trade, error) {
	fill := t.fillPrice(price, sig.Kind.OrderSide())
	fees := pos.Qty*fill*t.feeBps/10_000 + t.feeFixed
	return t.commit(Trade{
		Symbol: sig.Symbol,
		Ts:     sig.Ts,
		Kind:   sig.Kind,
		Qty:    pos.Qty,
		Price:  fill,
		Fees:   fees,
		Reason: sig.Reason,
	})
}

func (t *Trader) commit(trade Trade) (*Trade, error) {
	applied, err := t.ledger.Apply(trade)
	if err != nil {
		return nil, err
	}
	metrics.TradesTotal.WithLabelValues(applied.Symbol, string(applied.Side)).Inc()
	metrics.CashGauge.Set(t.ledger.Cash())
	metrics.EquityGauge.Set(t.ledger.Equity())

	event := t.log.Info().
		Str("symbol", applied.Symbol).
		Str("kind", string(applied.Kind)).
		Str("side", string(applied.Side)).
		Float64("qty", applied.Qty).
		Float64("price", applied.Price).
		Float64("fees", applied.Fees).
		Float64("cash", t.ledger.Cash())
	if applied.Kind == market.ExitLong || applied.Kind == market.ExitShort {
		event = event.Float64("realized_pnl", applied.RealizedPnL)
	}
	event.Msg("trade executed")

	if t.notifier != nil {
		t.notifier.TradeExecuted(applied)
	}
	for _, rec := range t.recorders {
		if recErr := rec.Record(applied); recErr != nil {
			t.log.Warn().Err(recErr).Str("symbol", applied.Symbol).Msg("trade record failed")
		}
	}
	return &applied, nil
}

func (t *Trader) reject(sig market.Signal, reason string) {
	metrics.RejectsTotal.WithLabelValues(sig.Symbol, reason).Inc()
	t.log.Warn().Str("symbol", sig.Symbol).Str("kind", string(sig.Kind)).
		Str("reason", reason).Msg("trade rejected")
	if t.notifier != nil {
		t.notifier.TradeRejected(sig.Symbol, reason)
	}
}

// fillPrice applies slippage against the taker: buys fill above the
// reference price, sells below it.
func (t *Trader) fillPrice(price float64, side market.OrderSide) float64 {
	slip := t.slippageBps / 10_000
	if side == market.Sell {
		return price * (1 - slip)
	}
	return price * (1 + slip)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
