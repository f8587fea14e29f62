// Package history keeps the bounded, time-ordered observation series the
// signal engine evaluates against.
package history

import (
	"errors"
	"fmt"
	"sync"

	"papertrader-go/internal/market"
)

// DuplicatePolicy decides what Append does with a repeated timestamp.
type DuplicatePolicy string

const (
	// Reject refuses a sample whose timestamp equals the newest one.
	Reject DuplicatePolicy = "reject"
	// Replace overwrites the newest sample in place. Live kline feeds
	// re-deliver the forming candle under the same open time, so this is
	// the default.
	Replace DuplicatePolicy = "replace"
)

// ParsePolicy maps a config string onto a DuplicatePolicy, defaulting to Replace.
func ParsePolicy(s string) DuplicatePolicy {
	if s == string(Reject) {
		return Reject
	}
	return Replace
}

var (
	// ErrOutOfOrder flags a sample older than the newest accepted one.
	ErrOutOfOrder = errors.New("observation out of order")
	// ErrDuplicate flags a repeated timestamp under the reject policy.
	ErrDuplicate = errors.New("duplicate observation timestamp")
)

type series struct {
	obs []market.Observation
}

// Buffer stores per-symbol observation series, bounded to the maximum
// window any indicator needs. Each symbol's series is independent.
type Buffer struct {
	maxWindow int
	policy    DuplicatePolicy
	mu        sync.RWMutex
	bySymbol  map[string]*series
}

// NewBuffer sizes the buffer; the bound is fixed for the process lifetime.
func NewBuffer(maxWindow int, policy DuplicatePolicy) *Buffer {
	if maxWindow <= 0 {
		maxWindow = 200
	}
	return &Buffer{
		maxWindow: maxWindow,
		policy:    policy,
		bySymbol:  make(map[string]*series),
	}
}

// Append adds an observation, enforcing strictly increasing timestamps.
// A repeated timestamp is replaced or rejected per the configured policy;
// anything older than the newest sample is always rejected. Oldest samples
// are evicted once the series exceeds the window bound.
func (b *Buffer) Append(obs market.Observation) error {
	if obs.Symbol == "" {
		return fmt.Errorf("observation missing symbol")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.bySymbol[obs.Symbol]
	if s == nil {
		s = &series{obs: make([]market.Observation, 0, b.maxWindow)}
		b.bySymbol[obs.Symbol] = s
	}

	if n := len(s.obs); n > 0 {
		newest := s.obs[n-1].Ts
		switch {
		case obs.Ts.Before(newest):
			return fmt.Errorf("%w: %s at %s behind %s", ErrOutOfOrder, obs.Symbol, obs.Ts, newest)
		case obs.Ts.Equal(newest):
			if b.policy == Reject {
				return fmt.Errorf("%w: %s at %s", ErrDuplicate, obs.Symbol, obs.Ts)
			}
			s.obs[n-1] = obs
			return nil
		}
	}

	s.obs = append(s.obs, obs)
	if len(s.obs) > b.maxWindow {
		s.obs = s.obs[len(s.obs)-b.maxWindow:]
	}
	return nil
}

// Window returns a copy of the last n observations for the symbol, oldest
// first. Fewer than n are returned when history is short; callers must not
// assume a full window.
func (b *Buffer) Window(symbol string, n int) []market.Observation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.bySymbol[symbol]
	if s == nil || n <= 0 {
		return nil
	}
	start := len(s.obs) - n
	if start < 0 {
		start = 0
	}
	out := make([]market.Observation, len(s.obs)-start)
	copy(out, s.obs[start:])
	return out
}

// Len reports how many observations are held for the symbol.
func (b *Buffer) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s := b.bySymbol[symbol]; s != nil {
		return len(s.obs)
	}
	return 0
}

// Latest returns the newest observation for the symbol, if any.
func (b *Buffer) Latest(symbol string) (market.Observation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.bySymbol[symbol]
	if s == nil || len(s.obs) == 0 {
		return market.Observation{}, false
	}
	return s.obs[len(s.obs)-1], true
}
