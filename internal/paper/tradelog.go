package paper

import (
	"math"
	"sync"

	"papertrader-go/internal/market"
)

// TradeLog keeps executed trades in memory for snapshots and the
// end-of-session summary. It implements TradeRecorder.
type TradeLog struct {
	mu     sync.RWMutex
	trades []Trade
}

func NewTradeLog() *TradeLog { return &TradeLog{} }

// Record appends a trade. It never fails.
func (l *TradeLog) Record(t Trade) error {
	l.mu.Lock()
	l.trades = append(l.trades, t)
	l.mu.Unlock()
	return nil
}

// Len returns the number of recorded trades.
func (l *TradeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Recent returns up to the last n trades, oldest first.
func (l *TradeLog) Recent(n int) []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if n > 0 && len(l.trades) > n {
		start = len(l.trades) - n
	}
	out := make([]Trade, len(l.trades)-start)
	copy(out, l.trades[start:])
	return out
}

// Stats summarizes closed-trade performance.
type Stats struct {
	TotalTrades  int     `json:"total_trades"` // fills, entries and exits both
	ClosedTrades int     `json:"closed_trades"`
	Winners      int     `json:"winners"`
	Losers       int     `json:"losers"`
	WinRate      float64 `json:"win_rate"` // fraction of closed trades
	TotalPnL     float64 `json:"total_pnl"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"` // gross wins over gross losses
}

// Stats computes the summary over all recorded trades. Realized P&L
// lives on exit fills only.
func (l *TradeLog) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s Stats
	s.TotalTrades = len(l.trades)
	var grossWin, grossLoss float64
	for _, t := range l.trades {
		if t.Kind != market.ExitLong && t.Kind != market.ExitShort {
			continue
		}
		s.ClosedTrades++
		s.TotalPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			s.Winners++
			grossWin += t.RealizedPnL
		} else {
			s.Losers++
			grossLoss += -t.RealizedPnL
		}
	}
	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.Winners) / float64(s.ClosedTrades)
	}
	if s.Winners > 0 {
		s.AvgWin = grossWin / float64(s.Winners)
	}
	if s.Losers > 0 {
		s.AvgLoss = grossLoss / float64(s.Losers)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		s.ProfitFactor = math.Inf(1)
	}
	return s
}
