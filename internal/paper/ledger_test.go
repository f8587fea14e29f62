package paper

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"papertrader-go/internal/market"
)

var baseTs = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLedgerLongRoundTrip(t *testing.T) {
	ledger := NewLedger(10_000)

	entry, err := ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.EnterLong, Qty: 10, Price: 100})
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.ID)
	require.Equal(t, market.Buy, entry.Side)
	require.InDelta(t, 9_000, ledger.Cash(), 1e-9)
	require.InDelta(t, 10_000, ledger.Equity(), 1e-9)

	pos := ledger.Position("BTCUSDT")
	require.Equal(t, market.Long, pos.Side)
	require.InDelta(t, 10, pos.Qty, 1e-9)
	require.InDelta(t, 100, pos.AvgEntry, 1e-9)

	exit, err := ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs.Add(time.Hour), Kind: market.ExitLong, Qty: 10, Price: 110})
	require.NoError(t, err)
	require.Equal(t, market.Sell, exit.Side)
	require.InDelta(t, 100, exit.RealizedPnL, 1e-9)
	require.InDelta(t, 10_100, ledger.Cash(), 1e-9)
	require.Equal(t, market.Flat, ledger.Position("BTCUSDT").Side)
	require.InDelta(t, 10_100, ledger.Equity(), 1e-9)
}

func TestLedgerShortRoundTrip(t *testing.T) {
	ledger := NewLedger(10_000)

	_, err := ledger.Apply(Trade{Symbol: "ETHUSDT", Ts: baseTs, Kind: market.EnterShort, Qty: 5, Price: 200})
	require.NoError(t, err)
	require.InDelta(t, 11_000, ledger.Cash(), 1e-9) // proceeds credited
	require.InDelta(t, 10_000, ledger.Equity(), 1e-9)

	exit, err := ledger.Apply(Trade{Symbol: "ETHUSDT", Ts: baseTs.Add(time.Hour), Kind: market.ExitShort, Qty: 5, Price: 180})
	require.NoError(t, err)
	require.InDelta(t, 100, exit.RealizedPnL, 1e-9) // (200-180)*5
	require.InDelta(t, 10_100, ledger.Cash(), 1e-9)
	require.InDelta(t, 10_100, ledger.Equity(), 1e-9)
}

func TestLedgerFeesReduceCashAndPnL(t *testing.T) {
	ledger := NewLedger(10_000)

	_, err := ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.EnterLong, Qty: 10, Price: 100, Fees: 2})
	require.NoError(t, err)
	require.InDelta(t, 8_998, ledger.Cash(), 1e-9)

	exit, err := ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs.Add(time.Hour), Kind: market.ExitLong, Qty: 10, Price: 110, Fees: 3})
	require.NoError(t, err)
	require.InDelta(t, 97, exit.RealizedPnL, 1e-9) // 100 gross minus exit fees
	require.InDelta(t, 10_095, ledger.Cash(), 1e-9)
}

func TestLedgerRejectsInconsistentTrades(t *testing.T) {
	ledger := NewLedger(1_000)

	_, err := ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.ExitLong, Qty: 1, Price: 100})
	require.ErrorIs(t, err, ErrPositionState)

	_, err = ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.EnterLong, Qty: 1, Price: 100})
	require.NoError(t, err)
	_, err = ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.EnterShort, Qty: 1, Price: 100})
	require.ErrorIs(t, err, ErrPositionState)
	_, err = ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.ExitShort, Qty: 1, Price: 100})
	require.ErrorIs(t, err, ErrPositionState)

	_, err = ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.Hold, Qty: 1, Price: 100})
	require.ErrorIs(t, err, ErrPositionState)
}

func TestLedgerEquityMarksOpenPositions(t *testing.T) {
	ledger := NewLedger(10_000)
	_, err := ledger.Apply(Trade{Symbol: "SOLUSDT", Ts: baseTs, Kind: market.EnterLong, Qty: 100, Price: 50})
	require.NoError(t, err)

	ledger.MarkPrice("SOLUSDT", 55)
	require.InDelta(t, 10_500, ledger.Equity(), 1e-9) // 5000 cash + 100*55

	point := ledger.RecordEquity(baseTs.Add(time.Minute))
	require.InDelta(t, 10_500, point.Equity, 1e-9)

	curve := ledger.EquityCurve(0)
	require.Len(t, curve, 2) // one per fill, one explicit sample
}

func TestLedgerSnapshotIsConsistentCopy(t *testing.T) {
	ledger := NewLedger(10_000)
	_, err := ledger.Apply(Trade{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.EnterLong, Qty: 10, Price: 100})
	require.NoError(t, err)
	ledger.MarkPrice("BTCUSDT", 102)
	ledger.RecordEquity(baseTs.Add(time.Minute))

	view := ledger.Snapshot(1)
	require.InDelta(t, 9_000, view.Cash, 1e-9)
	require.InDelta(t, 10_020, view.Equity, 1e-9)
	require.Len(t, view.EquityCurve, 1) // tail bounded
	require.InDelta(t, 102, view.Marks["BTCUSDT"], 1e-9)

	// the view is a copy; mutating it leaves the ledger alone
	view.Positions["BTCUSDT"] = Position{Symbol: "BTCUSDT", Side: market.Short, Qty: 1}
	require.Equal(t, market.Long, ledger.Position("BTCUSDT").Side)
}

func TestLedgerReplayReproducesState(t *testing.T) {
	ledger := NewLedger(25_000)
	fills := []Trade{
		{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.EnterLong, Qty: 3, Price: 1_000.25, Fees: 1.5},
		{Symbol: "ETHUSDT", Ts: baseTs.Add(time.Minute), Kind: market.EnterShort, Qty: 7, Price: 333.7, Fees: 0.9},
		{Symbol: "BTCUSDT", Ts: baseTs.Add(2 * time.Minute), Kind: market.ExitLong, Qty: 3, Price: 1_020.1, Fees: 1.6},
		{Symbol: "XAUUSDT", Ts: baseTs.Add(3 * time.Minute), Kind: market.EnterLong, Qty: 2, Price: 2_400, Fees: 2},
	}
	for _, f := range fills {
		_, err := ledger.Apply(f)
		require.NoError(t, err)
	}

	rebuilt, err := Replay(25_000, ledger.Trades())
	require.NoError(t, err)
	require.Equal(t, ledger.Cash(), rebuilt.Cash())
	require.Equal(t, ledger.Positions(), rebuilt.Positions())
	require.Equal(t, ledger.Trades(), rebuilt.Trades())
}

func TestLedgerReplayDetectsPnLMismatch(t *testing.T) {
	trades := []Trade{
		{Symbol: "BTCUSDT", Ts: baseTs, Kind: market.EnterLong, Qty: 1, Price: 100},
		{Symbol: "BTCUSDT", Ts: baseTs.Add(time.Minute), Kind: market.ExitLong, Qty: 1, Price: 110, RealizedPnL: 42},
	}
	_, err := Replay(10_000, trades)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLedgerCorrupt))
}
