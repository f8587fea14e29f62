package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"papertrader-go/internal/config"
	"papertrader-go/internal/market"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(config.Engine{MinScore: 2, TakeProfit: 0.015, StopLoss: 0.008, TrailPct: 0.007, MaxHoldMins: 480}, zerolog.Nop())
}

func risingWindow(n int, start, step float64) []market.Observation {
	return windowFrom(n, func(i int) (open, close float64) {
		close = start + step*float64(i)
		return close - 0.02, close
	})
}

func fallingWindow(n int, start, step float64) []market.Observation {
	return windowFrom(n, func(i int) (open, close float64) {
		close = start - step*float64(i)
		return close + 0.02, close
	})
}

func windowFrom(n int, price func(i int) (open, close float64)) []market.Observation {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Observation, n)
	for i := 0; i < n; i++ {
		open, close := price(i)
		hi, lo := open, close
		if close > open {
			hi, lo = close, open
		}
		out[i] = market.Observation{
			Symbol: "BTCUSDT",
			Ts:     base.Add(time.Duration(i) * 15 * time.Minute),
			Open:   open,
			High:   hi + 0.01,
			Low:    lo - 0.01,
			Price:  close,
			Volume: 1000,
		}
	}
	return out
}

func flat(sym string) market.PositionView {
	return market.PositionView{Symbol: sym, Side: market.Flat}
}

func TestEvaluateInsufficientHistoryHolds(t *testing.T) {
	e := newTestEngine(t)

	sig := e.Evaluate("BTCUSDT", risingWindow(10, 100, 0.05), flat("BTCUSDT"))
	require.Equal(t, market.Hold, sig.Kind)
	require.Contains(t, sig.Reason, "insufficient history")

	sig = e.Evaluate("BTCUSDT", nil, flat("BTCUSDT"))
	require.Equal(t, market.Hold, sig.Kind)
	require.True(t, sig.Ts.IsZero()) // no observation to stamp it from
	require.Equal(t, sig, e.Evaluate("BTCUSDT", nil, flat("BTCUSDT")))
}

func TestEvaluateEnterLongOnUptrend(t *testing.T) {
	e := newTestEngine(t)
	window := risingWindow(60, 100, 0.05)

	sig := e.Evaluate("BTCUSDT", window, flat("BTCUSDT"))
	require.Equal(t, market.EnterLong, sig.Kind)
	require.Greater(t, sig.Confidence, 0.0)
	require.Equal(t, window[len(window)-1].Ts, sig.Ts)
	require.Contains(t, sig.Indicators, "ema_8")
	require.Contains(t, sig.Indicators, "rsi")
	require.Equal(t, 1.0, sig.Indicators["trend"])
}

func TestEvaluateEnterShortOnDowntrend(t *testing.T) {
	e := newTestEngine(t)
	window := fallingWindow(60, 100, 0.05)

	sig := e.Evaluate("BTCUSDT", window, flat("BTCUSDT"))
	require.Equal(t, market.EnterShort, sig.Kind)
	require.Equal(t, -1.0, sig.Indicators["trend"])
}

func TestEvaluateSuppressesDuplicateEntry(t *testing.T) {
	e := newTestEngine(t)
	window := risingWindow(60, 100, 0.05)
	latest := window[len(window)-1]

	pos := market.PositionView{
		Symbol:   "BTCUSDT",
		Side:     market.Long,
		Qty:      1,
		AvgEntry: latest.Price,
		EntryTs:  latest.Ts,
	}
	sig := e.Evaluate("BTCUSDT", window, pos)
	require.Equal(t, market.Hold, sig.Kind, "entry while positioned must be suppressed")
}

func TestEvaluateExitTakeProfit(t *testing.T) {
	e := newTestEngine(t)
	window := risingWindow(60, 100, 0.05)
	latest := window[len(window)-1]

	pos := market.PositionView{
		Symbol:   "BTCUSDT",
		Side:     market.Long,
		Qty:      1,
		AvgEntry: latest.Price / 1.02, // +2% in profit, above the 1.5% target
		EntryTs:  latest.Ts,
	}
	sig := e.Evaluate("BTCUSDT", window, pos)
	require.Equal(t, market.ExitLong, sig.Kind)
	require.Equal(t, "take profit", sig.Reason)
	require.Equal(t, 1.0, sig.Confidence)
}

func TestEvaluateExitStopLoss(t *testing.T) {
	e := newTestEngine(t)
	window := risingWindow(60, 100, 0.05)
	latest := window[len(window)-1]

	pos := market.PositionView{
		Symbol:   "BTCUSDT",
		Side:     market.Long,
		Qty:      1,
		AvgEntry: latest.Price / 0.99, // 1% under water, past the 0.8% stop
		EntryTs:  latest.Ts,
	}
	sig := e.Evaluate("BTCUSDT", window, pos)
	require.Equal(t, market.ExitLong, sig.Kind)
	require.Equal(t, "stop loss", sig.Reason)
}

func TestEvaluateExitTrailingStop(t *testing.T) {
	e := newTestEngine(t)
	// rise to +1.2% then give back to +0.3%: peak-trail = 0.5% > 0.3%
	window := windowFrom(70, func(i int) (float64, float64) {
		var close float64
		switch {
		case i < 60:
			close = 100 + 0.02*float64(i)
		case i < 65:
			close = 101.2
		default:
			close = 101.2 - 0.18*float64(i-64)
		}
		return close - 0.01, close
	})
	entryTs := window[0].Ts

	pos := market.PositionView{Symbol: "BTCUSDT", Side: market.Long, Qty: 1, AvgEntry: 100, EntryTs: entryTs}
	sig := e.Evaluate("BTCUSDT", window, pos)
	require.Equal(t, market.ExitLong, sig.Kind)
	require.Contains(t, sig.Reason, "trailing stop")
}

func TestEvaluateExitTrendFlip(t *testing.T) {
	e := newTestEngine(t)
	window := fallingWindow(60, 100, 0.01)
	latest := window[len(window)-1]

	pos := market.PositionView{
		Symbol:   "BTCUSDT",
		Side:     market.Long,
		Qty:      1,
		AvgEntry: latest.Price,
		EntryTs:  latest.Ts,
	}
	sig := e.Evaluate("BTCUSDT", window, pos)
	require.Equal(t, market.ExitLong, sig.Kind)
	require.Equal(t, "trend flip", sig.Reason)
}

func TestEvaluateExitMaxHold(t *testing.T) {
	e := New(config.Engine{MaxHoldMins: 60}, zerolog.Nop())
	window := risingWindow(60, 100, 0.05)
	latest := window[len(window)-1]

	pos := market.PositionView{
		Symbol:   "BTCUSDT",
		Side:     market.Long,
		Qty:      1,
		AvgEntry: latest.Price,
		EntryTs:  latest.Ts.Add(-2 * time.Hour),
	}
	sig := e.Evaluate("BTCUSDT", window, pos)
	require.Equal(t, market.ExitLong, sig.Kind)
	require.Equal(t, "max hold exceeded", sig.Reason)
}

func TestEvaluateDeterministic(t *testing.T) {
	e := newTestEngine(t)
	window := risingWindow(60, 100, 0.05)

	a := e.Evaluate("BTCUSDT", window, flat("BTCUSDT"))
	b := e.Evaluate("BTCUSDT", window, flat("BTCUSDT"))
	require.Equal(t, a.Kind, b.Kind)
	require.Equal(t, a.Confidence, b.Confidence)
	require.Equal(t, a.Indicators, b.Indicators)
}

func TestLastSignalCached(t *testing.T) {
	e := newTestEngine(t)
	_, ok := e.LastSignal("BTCUSDT")
	require.False(t, ok)

	sig := e.Evaluate("BTCUSDT", risingWindow(60, 100, 0.05), flat("BTCUSDT"))
	cached, ok := e.LastSignal("BTCUSDT")
	require.True(t, ok)
	require.Equal(t, sig.Kind, cached.Kind)
}
