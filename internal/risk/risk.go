// Package risk holds the guard-rails applied when sizing simulated entries.
package risk

// Limits caps how much notional a single trade or a single symbol's open
// position may carry. Zero disables a cap.
type Limits struct {
	MaxNotionalPerTrade float64
	MaxPositionNotional float64
}

// Cap clamps a proposed trade notional to the per-trade limit.
func (l Limits) Cap(notional float64) float64 {
	if l.MaxNotionalPerTrade > 0 && notional > l.MaxNotionalPerTrade {
		return l.MaxNotionalPerTrade
	}
	return notional
}

// AllowPosition reports whether the resulting position notional stays
// inside the per-symbol exposure limit.
func (l Limits) AllowPosition(notional float64) bool {
	return l.MaxPositionNotional <= 0 || notional <= l.MaxPositionNotional
}
