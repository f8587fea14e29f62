// Package feed hosts the price source adapters the trading cycle fetches from.
package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"papertrader-go/internal/config"
	"papertrader-go/internal/market"
)

const (
	// ProviderStub emits deterministic synthetic candles (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance polls the Binance public kline REST endpoint.
	ProviderBinance = "binance"
	// ProviderBinanceWS streams klines over websocket and serves the cached latest.
	ProviderBinanceWS = "binance_ws"
)

var (
	// ErrSourceUnavailable marks a transient upstream failure; the caller
	// skips the cycle for that symbol and retries later.
	ErrSourceUnavailable = errors.New("price source unavailable")
	// ErrInvalidData marks a sample that must be discarded: non-positive or
	// NaN price, or a timestamp not newer than the last accepted one.
	ErrInvalidData = errors.New("invalid price data")
)

// Source fetches the latest observation for one symbol. Implementations
// must confine a failure to the requested symbol.
type Source interface {
	Fetch(ctx context.Context, symbol string) (market.Observation, error)
}

// New constructs a source for the configured provider.
func New(cfg config.Feed, log zerolog.Logger) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderStub:
		return NewStub(cfg.Symbols), nil
	case ProviderBinance:
		return NewBinance(cfg, log), nil
	case ProviderBinanceWS:
		return NewBinanceWS(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Provider)
	}
}

// acceptance tracks the last accepted timestamp per symbol so every
// provider applies the same validity rules.
type acceptance struct {
	mu     sync.Mutex
	lastTs map[string]time.Time
}

func newAcceptance() *acceptance {
	return &acceptance{lastTs: make(map[string]time.Time)}
}

// accept validates an observation and records its timestamp. A sample that
// fails validation leaves the acceptance state untouched.
func (a *acceptance) accept(obs market.Observation) (market.Observation, error) {
	if obs.Price <= 0 || math.IsNaN(obs.Price) || math.IsInf(obs.Price, 0) {
		return market.Observation{}, fmt.Errorf("%w: %s price %v", ErrInvalidData, obs.Symbol, obs.Price)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.lastTs[obs.Symbol]; ok && !obs.Ts.After(last) {
		return market.Observation{}, fmt.Errorf("%w: %s timestamp %s not after %s", ErrInvalidData, obs.Symbol, obs.Ts, last)
	}
	a.lastTs[obs.Symbol] = obs.Ts
	return obs, nil
}

// Stub produces a deterministic synthetic walk per symbol.
type Stub struct {
	acc *acceptance
	mu  sync.Mutex
	px  map[string]float64
	ts  map[string]time.Time
}

// NewStub seeds each symbol's walk from its name so runs are reproducible.
func NewStub(symbols []string) *Stub {
	s := &Stub{
		acc: newAcceptance(),
		px:  make(map[string]float64, len(symbols)),
		ts:  make(map[string]time.Time, len(symbols)),
	}
	for _, sym := range symbols {
		s.px[sym] = seedPrice(sym)
	}
	return s
}

func seedPrice(symbol string) float64 {
	var h uint64
	for _, r := range symbol {
		h = h*31 + uint64(r)
	}
	return 50 + float64(h%1000)
}

// Fetch advances the walk one step and returns the new candle.
func (s *Stub) Fetch(ctx context.Context, symbol string) (market.Observation, error) {
	if err := ctx.Err(); err != nil {
		return market.Observation{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	s.mu.Lock()
	px, ok := s.px[symbol]
	if !ok {
		px = seedPrice(symbol)
	}
	open := px
	px += 0.1 + 0.001*px*math.Sin(float64(len(s.ts))) // drift with a mild wobble
	s.px[symbol] = px
	ts := s.ts[symbol].Add(time.Minute)
	if s.ts[symbol].IsZero() {
		ts = time.Now().UTC().Truncate(time.Minute)
	}
	s.ts[symbol] = ts
	s.mu.Unlock()

	obs := market.Observation{
		Symbol: symbol,
		Ts:     ts,
		Price:  px,
		Open:   open,
		High:   math.Max(open, px),
		Low:    math.Min(open, px),
		Volume: 1000,
	}
	return s.acc.accept(obs)
}
