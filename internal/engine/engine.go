// Package engine turns observation windows into classified trading signals.
package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"papertrader-go/internal/config"
	"papertrader-go/internal/market"
)

// Engine evaluates one symbol's history into a Signal. Evaluation is pure
// with respect to the supplied window and position context: the same
// inputs always produce the same signal, so a replay of the observation
// stream reproduces the decision stream.
type Engine struct {
	log      zerolog.Logger
	minScore int
	tp       float64
	sl       float64
	trail    float64
	maxHold  time.Duration

	mu   sync.Mutex
	last map[string]market.Signal
}

// New applies the original strategy defaults to any unset knob.
func New(cfg config.Engine, log zerolog.Logger) *Engine {
	minScore := cfg.MinScore
	if minScore <= 0 || minScore > 5 {
		minScore = 2
	}
	tp := cfg.TakeProfit
	if tp <= 0 {
		tp = 0.015
	}
	sl := cfg.StopLoss
	if sl <= 0 {
		sl = 0.008
	}
	trail := cfg.TrailPct
	if trail <= 0 {
		trail = 0.007
	}
	maxHold := time.Duration(cfg.MaxHoldMins) * time.Minute
	if maxHold <= 0 {
		maxHold = 8 * time.Hour
	}
	return &Engine{
		log:      log,
		minScore: minScore,
		tp:       tp,
		sl:       sl,
		trail:    trail,
		maxHold:  maxHold,
		last:     make(map[string]market.Signal),
	}
}

// Evaluate classifies the newest state of the window. It never fails:
// insufficient history is the warm-up steady state and reads as HOLD.
func (e *Engine) Evaluate(symbol string, window []market.Observation, pos market.PositionView) market.Signal {
	sig := e.evaluate(symbol, window, pos)

	e.mu.Lock()
	e.last[symbol] = sig
	e.mu.Unlock()

	if sig.Kind.Directional() {
		e.log.Info().Str("sym", symbol).Str("kind", string(sig.Kind)).
			Float64("confidence", sig.Confidence).Str("reason", sig.Reason).Msg("signal")
	}
	return sig
}

// LastSignal returns the most recent signal produced for the symbol.
func (e *Engine) LastSignal(symbol string) (market.Signal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.last[symbol]
	return sig, ok
}

func (e *Engine) evaluate(symbol string, window []market.Observation, pos market.PositionView) market.Signal {
	if len(window) == 0 {
		// zero timestamp: there is no observation to stamp it from, and
		// evaluation stays a pure function of its inputs
		return market.Signal{Symbol: symbol, Kind: market.Hold, Reason: "no history"}
	}
	latest := window[len(window)-1]
	base := market.Signal{Symbol: symbol, Ts: latest.Ts, Kind: market.Hold}

	if len(window) < minHistory {
		base.Reason = fmt.Sprintf("insufficient history (%d/%d)", len(window), minHistory)
		return base
	}

	snap := e.snapshot(window)
	base.Indicators = snap.values
	trend := snap.trend

	switch pos.Side {
	case market.Long, market.Short:
		if kind, reason := e.exitCheck(window, pos, snap); kind != market.Hold {
			base.Kind = kind
			base.Reason = reason
			base.Confidence = 1
			return base
		}
		base.Reason = "position open, no exit condition"
		return base
	}

	// flat: look for an entry in the trend direction
	if trend == 0 {
		base.Reason = "no clear trend"
		return base
	}

	score, checks := e.entryScore(window, snap, trend)
	base.Indicators["entry_score"] = float64(score)
	if score < e.minScore {
		base.Reason = fmt.Sprintf("score %d/5 below %d (%s)", score, e.minScore, checks)
		return base
	}

	if trend > 0 {
		base.Kind = market.EnterLong
	} else {
		base.Kind = market.EnterShort
	}
	base.Confidence = float64(score) / 5.0
	base.Reason = fmt.Sprintf("score %d/5 (%s)", score, checks)
	return base
}

type indicatorSnapshot struct {
	values map[string]float64
	trend  int // +1 bullish, -1 bearish, 0 neutral
}

func (e *Engine) snapshot(window []market.Observation) indicatorSnapshot {
	closes := closesOf(window)
	latest := window[len(window)-1]

	emaFast := lastEMA(closes, emaFastPeriod)
	emaMid := lastEMA(closes, emaMidPeriod)
	emaSlow := lastEMA(closes, emaSlowPeriod)
	emaEntry := lastEMA(closes, emaEntryPeriod)
	macdLine, macdSig, macdPrev := macd(closes)
	rsiVal := rsi(closes, rsiPeriod)
	atrVal := atr(window, atrPeriod)
	volRatio := volumeRatio(window, volMeanPeriod)
	distEntry := (latest.Price - emaEntry) / (emaEntry + 1e-10) * 100
	body := latest.Price - latest.Open

	fullUp := emaFast > emaMid && emaMid > emaSlow
	fullDown := emaFast < emaMid && emaMid < emaSlow
	partialUp := emaFast > emaMid && macdLine > macdSig
	partialDown := emaFast < emaMid && macdLine < macdSig

	trend := 0
	bullish := fullUp || partialUp
	bearish := fullDown || partialDown
	switch {
	case bullish && !bearish:
		trend = 1
	case bearish && !bullish:
		trend = -1
	}

	atrPct := 0.0
	if latest.Price > 0 {
		atrPct = atrVal / latest.Price * 100
	}

	return indicatorSnapshot{
		trend: trend,
		values: map[string]float64{
			"ema_8":       emaFast,
			"ema_21":      emaMid,
			"ema_50":      emaSlow,
			"ema_13":      emaEntry,
			"macd":        macdLine,
			"macd_signal": macdSig,
			"macd_prev":   macdPrev,
			"rsi":         rsiVal,
			"atr_pct":     atrPct,
			"vol_ratio":   volRatio,
			"dist_ema13":  distEntry,
			"body":        body,
			"trend":       float64(trend),
		},
	}
}

// entryScore counts how many of the five entry conditions hold. Borderline
// readings fail their condition, so ambiguity degrades toward HOLD.
func (e *Engine) entryScore(window []market.Observation, snap indicatorSnapshot, trend int) (int, string) {
	v := snap.values
	var nearEMA, rsiOK, macdOK, candleOK, volOK bool

	rsiOK = v["rsi"] > 30 && v["rsi"] < 70
	volOK = v["vol_ratio"] > 0.5

	if trend > 0 {
		nearEMA = v["dist_ema13"] > -2.0 && v["dist_ema13"] < 1.5
		macdOK = v["macd"] > v["macd_signal"] || v["macd"] > v["macd_prev"]
		candleOK = v["body"] > 0
	} else {
		nearEMA = v["dist_ema13"] > -1.5 && v["dist_ema13"] < 2.0
		macdOK = v["macd"] < v["macd_signal"] || v["macd"] < v["macd_prev"]
		candleOK = v["body"] < 0
	}

	score := 0
	for _, ok := range []bool{nearEMA, rsiOK, macdOK, candleOK, volOK} {
		if ok {
			score++
		}
	}
	checks := fmt.Sprintf("ema=%t rsi=%t macd=%t candle=%t vol=%t", nearEMA, rsiOK, macdOK, candleOK, volOK)
	return score, checks
}

// exitCheck walks the exit ladder for an open position; first match wins.
func (e *Engine) exitCheck(window []market.Observation, pos market.PositionView, snap indicatorSnapshot) (market.SignalKind, string) {
	latest := window[len(window)-1]
	price := latest.Price
	entry := pos.AvgEntry
	if entry <= 0 {
		return market.Hold, ""
	}

	exitKind := market.ExitLong
	if pos.Side == market.Short {
		exitKind = market.ExitShort
	}

	pnlPct := (price - entry) / entry * pos.Side.Sign()

	if pnlPct >= e.tp {
		return exitKind, "take profit"
	}
	if pnlPct <= -e.sl {
		return exitKind, "stop loss"
	}

	// trailing stop: peak favorable excursion since entry, recomputed from
	// the window so restarts rebuild it instead of relying on retained state
	peak := peakFavorable(window, pos)
	if peak > e.trail && pnlPct < peak-e.trail {
		return exitKind, fmt.Sprintf("trailing stop (peak %.2f%%)", peak*100)
	}

	if !pos.EntryTs.IsZero() && latest.Ts.Sub(pos.EntryTs) >= e.maxHold {
		return exitKind, "max hold exceeded"
	}

	if (pos.Side == market.Long && snap.trend < 0) || (pos.Side == market.Short && snap.trend > 0) {
		return exitKind, "trend flip"
	}
	return market.Hold, ""
}

// peakFavorable finds the best excursion since entry present in the window.
func peakFavorable(window []market.Observation, pos market.PositionView) float64 {
	best := math.Inf(-1)
	seen := false
	for _, obs := range window {
		if !pos.EntryTs.IsZero() && obs.Ts.Before(pos.EntryTs) {
			continue
		}
		excursion := (obs.Price - pos.AvgEntry) / pos.AvgEntry * pos.Side.Sign()
		if excursion > best {
			best = excursion
		}
		seen = true
	}
	if !seen {
		return 0
	}
	return best
}
