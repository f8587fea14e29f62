// Package bot runs the fetch, evaluate, execute cycle over all configured
// symbols and exposes a point-in-time snapshot of the session.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"papertrader-go/internal/config"
	"papertrader-go/internal/engine"
	"papertrader-go/internal/feed"
	"papertrader-go/internal/history"
	"papertrader-go/internal/market"
	"papertrader-go/internal/metrics"
	"papertrader-go/internal/paper"
	"papertrader-go/internal/util"
)

// ErrNotReady is returned by Snapshot before the first observation has
// been accepted into history.
var ErrNotReady = errors.New("no market data received yet")

// starter is implemented by sources with a background pump to launch.
type starter interface {
	Start(ctx context.Context)
}

// Bot owns one trading session: a feed source, the shared history
// buffer, the signal engine, and the paper trader.
type Bot struct {
	log       zerolog.Logger
	symbols   []string
	maxWindow int
	interval  time.Duration
	source    feed.Source
	history   *history.Buffer
	engine    *engine.Engine
	trader    *paper.Trader
	tradeLog  *paper.TradeLog
	recentMax int

	mu            sync.Mutex
	recentSignals []market.Signal
	observed      bool
}

// New assembles a bot from already-constructed components.
func New(cfg *config.Config, source feed.Source, buf *history.Buffer, eng *engine.Engine, trader *paper.Trader, tradeLog *paper.TradeLog, log zerolog.Logger) *Bot {
	interval := time.Duration(cfg.Feed.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	maxWindow := cfg.History.MaxWindow
	if maxWindow <= 0 {
		maxWindow = 500
	}
	recentMax := cfg.Paper.RecentEvents
	if recentMax <= 0 {
		recentMax = 50
	}
	return &Bot{
		log:       util.Component(log, "bot"),
		symbols:   append([]string(nil), cfg.Feed.Symbols...),
		maxWindow: maxWindow,
		interval:  interval,
		source:    source,
		history:   buf,
		engine:    eng,
		trader:    trader,
		tradeLog:  tradeLog,
		recentMax: recentMax,
	}
}

// Interval returns the cycle cadence.
func (b *Bot) Interval() time.Duration { return b.interval }

// cycleResult carries one symbol's evaluated signal to the serial
// execution stage.
type cycleResult struct {
	symbol string
	signal market.Signal
	price  float64
}

// RunCycle performs one full pass: fetch and evaluate every symbol in
// parallel, then apply the resulting signals to the ledger one at a
// time. A failing symbol is skipped for the cycle; only a corrupted
// ledger aborts.
func (b *Bot) RunCycle(ctx context.Context) error {
	results := make([]cycleResult, 0, len(b.symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range b.symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			res, ok := b.evaluateSymbol(ctx, symbol)
			if !ok {
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	// deterministic execution order regardless of goroutine scheduling
	sort.Slice(results, func(i, j int) bool { return results[i].symbol < results[j].symbol })

	for _, res := range results {
		if _, err := b.trader.Apply(res.signal, res.price); err != nil {
			if errors.Is(err, paper.ErrLedgerCorrupt) {
				return fmt.Errorf("cycle aborted: %w", err)
			}
			// sizing rejections are already logged and notified
			if !errors.Is(err, paper.ErrInsufficientCash) && !errors.Is(err, paper.ErrPositionLimit) {
				b.log.Error().Err(err).Str("symbol", res.symbol).Msg("signal execution failed")
			}
		}
	}

	ledger := b.trader.Ledger()
	ledger.RecordEquity(time.Now().UTC())
	metrics.EquityGauge.Set(ledger.Equity())
	metrics.CashGauge.Set(ledger.Cash())
	return nil
}

// evaluateSymbol fetches one observation, folds it into history, and
// asks the engine for a signal. It never mutates the ledger beyond the
// mark price.
func (b *Bot) evaluateSymbol(ctx context.Context, symbol string) (cycleResult, bool) {
	obs, err := b.source.Fetch(ctx, symbol)
	if err != nil {
		reason := "unavailable"
		if errors.Is(err, feed.ErrInvalidData) {
			reason = "invalid"
		}
		metrics.DataQualityTotal.WithLabelValues(symbol, reason).Inc()
		b.log.Warn().Err(err).Str("symbol", symbol).Msg("fetch skipped")
		return cycleResult{}, false
	}

	b.trader.Ledger().MarkPrice(symbol, obs.Price)

	if err := b.history.Append(obs); err != nil {
		reason := "out_of_order"
		if errors.Is(err, history.ErrDuplicate) {
			reason = "duplicate"
		}
		metrics.DataQualityTotal.WithLabelValues(symbol, reason).Inc()
		b.log.Debug().Err(err).Str("symbol", symbol).Msg("observation dropped")
		return cycleResult{}, false
	}
	metrics.ObservationsTotal.WithLabelValues(symbol).Inc()
	b.markObserved()

	window := b.history.Window(symbol, b.maxWindow)
	pos := b.trader.Ledger().Position(symbol).View()
	sig := b.engine.Evaluate(symbol, window, pos)
	metrics.SignalsTotal.WithLabelValues(symbol, string(sig.Kind)).Inc()
	b.recordSignal(sig)

	return cycleResult{symbol: symbol, signal: sig, price: obs.Price}, true
}

func (b *Bot) markObserved() {
	b.mu.Lock()
	b.observed = true
	b.mu.Unlock()
}

func (b *Bot) recordSignal(sig market.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentSignals = append(b.recentSignals, sig)
	if len(b.recentSignals) > b.recentMax {
		b.recentSignals = b.recentSignals[len(b.recentSignals)-b.recentMax:]
	}
}

// Run starts the source pump if the provider has one, then loops cycles
// at the configured cadence until the context is canceled. The first
// cycle runs immediately.
func (b *Bot) Run(ctx context.Context) error {
	if s, ok := b.source.(starter); ok {
		s.Start(ctx)
	}
	b.log.Info().
		Strs("symbols", b.symbols).
		Dur("interval", b.interval).
		Float64("cash", b.trader.Ledger().Cash()).
		Msg("trading loop started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if err := b.RunCycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			b.log.Info().Msg("trading loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Snapshot is the point-in-time session state served to operators.
type Snapshot struct {
	Ts            time.Time           `json:"ts"`
	StartingCash  float64             `json:"starting_cash"`
	Cash          float64             `json:"cash"`
	Equity        float64             `json:"equity"`
	Positions     []paper.Position    `json:"positions"`
	Marks         map[string]float64  `json:"marks"`
	EquityCurve   []paper.EquityPoint `json:"equity_curve"`
	RecentSignals []market.Signal     `json:"recent_signals"`
	RecentTrades  []paper.Trade       `json:"recent_trades"`
	Stats         paper.Stats         `json:"stats"`
}

// Snapshot returns current positions, balances, and recent activity.
// All slices are copies; mutating them does not touch the session.
func (b *Bot) Snapshot() (Snapshot, error) {
	b.mu.Lock()
	observed := b.observed
	signals := make([]market.Signal, len(b.recentSignals))
	copy(signals, b.recentSignals)
	b.mu.Unlock()

	if !observed {
		return Snapshot{}, ErrNotReady
	}

	ledger := b.trader.Ledger()
	view := ledger.Snapshot(b.recentMax)
	positions := make([]paper.Position, 0, len(view.Positions))
	for _, pos := range view.Positions {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	return Snapshot{
		Ts:            time.Now().UTC(),
		StartingCash:  ledger.StartingCash(),
		Cash:          view.Cash,
		Equity:        view.Equity,
		Positions:     positions,
		Marks:         view.Marks,
		EquityCurve:   view.EquityCurve,
		RecentSignals: signals,
		RecentTrades:  b.tradeLog.Recent(b.recentMax),
		Stats:         b.tradeLog.Stats(),
	}, nil
}
