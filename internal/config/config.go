// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed describes the market data source the trader polls each cycle.
type Feed struct {
	Provider       string   `yaml:"provider"` // stub|binance|binance_ws
	Symbols        []string `yaml:"symbols"`
	BaseURL        string   `yaml:"base_url"`
	Interval       string   `yaml:"interval"` // kline interval, e.g. 15m
	PollIntervalMs int      `yaml:"poll_interval_ms"`
	FetchTimeoutMs int      `yaml:"fetch_timeout_ms"`
	StaleAfterMs   int      `yaml:"stale_after_ms"` // websocket cache staleness bound
}

// History controls the per-symbol observation buffer.
type History struct {
	MaxWindow       int    `yaml:"max_window"`
	DuplicatePolicy string `yaml:"duplicate_policy"` // reject|replace
}

// Engine groups the signal-generation knobs.
type Engine struct {
	MinScore    int     `yaml:"min_score"`     // entry conditions required, out of 5
	TakeProfit  float64 `yaml:"take_profit"`   // fraction, e.g. 0.015
	StopLoss    float64 `yaml:"stop_loss"`     // fraction
	TrailPct    float64 `yaml:"trail_pct"`     // give-back from the peak before exiting
	MaxHoldMins int     `yaml:"max_hold_mins"` // forced exit after this long in a position
}

// Risk encodes guard-rails for how much size the trader may take on.
type Risk struct {
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	MaxPositionNotional float64 `yaml:"max_position_notional"`
}

// Paper captures the simulated account settings: bankroll, sizing, and fill model.
type Paper struct {
	StartingCash float64 `yaml:"starting_cash"`
	SizingMode   string  `yaml:"sizing_mode"`   // equity_fraction|fixed_qty
	EquityFrac   float64 `yaml:"equity_frac"`   // equity_fraction mode: base fraction of equity per entry
	FixedQty     float64 `yaml:"fixed_qty"`     // fixed_qty mode
	SlippageBps  float64 `yaml:"slippage_bps"`  // fill price moved against the taker
	FeeBps       float64 `yaml:"fee_bps"`       // proportional fee on notional
	FeeFixed     float64 `yaml:"fee_fixed"`     // flat fee per fill
	TradesDir    string  `yaml:"trades_dir"`    // JSONL trade log directory
	RecentEvents int     `yaml:"recent_events"` // signals/trades retained for snapshots
}

// Alerts configures the best-effort notification channel.
type Alerts struct {
	WebhookURL string `yaml:"webhook_url"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Feed    Feed    `yaml:"feed"`
	History History `yaml:"history"`
	Engine  Engine  `yaml:"engine"`
	Risk    Risk    `yaml:"risk"`
	Paper   Paper   `yaml:"paper"`
	Alerts  Alerts  `yaml:"alerts"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
