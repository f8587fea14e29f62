package config

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "papertrader-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Feed.Provider != "binance" {
		t.Fatalf("unexpected Feed.Provider: %s", cfg.Feed.Provider)
	}
	if len(cfg.Feed.Symbols) != 5 || cfg.Feed.Symbols[0] != "BTCUSDT" || cfg.Feed.Symbols[4] != "XAGUSDT" {
		t.Fatalf("unexpected symbol set: %+v", cfg.Feed.Symbols)
	}
	if cfg.Feed.Interval != "15m" {
		t.Fatalf("unexpected kline interval: %s", cfg.Feed.Interval)
	}
	if cfg.Feed.PollIntervalMs != 60000 || cfg.Feed.FetchTimeoutMs != 10000 {
		t.Fatalf("unexpected feed timings: %+v", cfg.Feed)
	}
	if cfg.History.MaxWindow != 200 {
		t.Fatalf("unexpected history window: %d", cfg.History.MaxWindow)
	}
	if cfg.History.DuplicatePolicy != "replace" {
		t.Fatalf("unexpected duplicate policy: %s", cfg.History.DuplicatePolicy)
	}
	if cfg.Engine.MinScore != 2 {
		t.Fatalf("unexpected min score: %d", cfg.Engine.MinScore)
	}
	if cfg.Engine.TakeProfit != 0.015 || cfg.Engine.StopLoss != 0.008 || cfg.Engine.TrailPct != 0.007 {
		t.Fatalf("unexpected exit thresholds: %+v", cfg.Engine)
	}
	if cfg.Engine.MaxHoldMins != 480 {
		t.Fatalf("unexpected max hold: %d", cfg.Engine.MaxHoldMins)
	}
	if cfg.Risk.MaxNotionalPerTrade != 5000 {
		t.Fatalf("unexpected per-trade cap: %.2f", cfg.Risk.MaxNotionalPerTrade)
	}
	if cfg.Risk.MaxPositionNotional != 20000 {
		t.Fatalf("unexpected position cap: %.2f", cfg.Risk.MaxPositionNotional)
	}
	if cfg.Paper.StartingCash != 100000 {
		t.Fatalf("expected starting cash 100000, got %.2f", cfg.Paper.StartingCash)
	}
	if cfg.Paper.SizingMode != "fraction" || cfg.Paper.EquityFrac != 0.02 {
		t.Fatalf("unexpected sizing config: %+v", cfg.Paper)
	}
	if cfg.Paper.SlippageBps != 5 || cfg.Paper.FeeBps != 8 {
		t.Fatalf("unexpected fill model: %+v", cfg.Paper)
	}
	if cfg.Paper.TradesDir != "results/paper_trades" {
		t.Fatalf("unexpected trades dir: %s", cfg.Paper.TradesDir)
	}
	if cfg.Paper.RecentEvents != 50 {
		t.Fatalf("unexpected recent events: %d", cfg.Paper.RecentEvents)
	}
	if cfg.Alerts.TimeoutMs != 5000 {
		t.Fatalf("unexpected alert timeout: %d", cfg.Alerts.TimeoutMs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg.Paper.StartingCash = 25000

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if reloaded.Paper.StartingCash != 25000 {
		t.Fatalf("expected saved starting cash 25000, got %.2f", reloaded.Paper.StartingCash)
	}
	if reloaded.Feed.Provider != cfg.Feed.Provider {
		t.Fatalf("provider lost in round trip")
	}
}

func TestSaveNil(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "config.yaml"), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
