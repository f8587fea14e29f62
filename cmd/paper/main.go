package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"papertrader-go/internal/alert"
	"papertrader-go/internal/bot"
	"papertrader-go/internal/config"
	"papertrader-go/internal/engine"
	"papertrader-go/internal/feed"
	"papertrader-go/internal/history"
	"papertrader-go/internal/metrics"
	"papertrader-go/internal/paper"
	"papertrader-go/internal/risk"
	"papertrader-go/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	_ = godotenv.Load()

	boot := util.NewLogger("info")

	path := defaultConfigPath
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		path = env
	}
	cfg, err := config.Load(path)
	if err != nil {
		boot.Fatal().Err(err).Str("path", path).Msg("load config")
	}
	// secrets come from the environment, never from the yaml on disk
	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		cfg.Alerts.WebhookURL = url
	}

	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source, err := feed.New(cfg.Feed, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build feed source")
	}

	// rebuild the ledger from the persisted trade log so restarts keep
	// their positions and P&L
	persisted, err := paper.LoadTrades(cfg.Paper.TradesDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load persisted trades")
	}
	ledger, err := paper.Replay(cfg.Paper.StartingCash, persisted)
	if err != nil {
		log.Fatal().Err(err).Msg("replay persisted trades")
	}
	if len(persisted) > 0 {
		log.Info().Int("trades", len(persisted)).Float64("cash", ledger.Cash()).Msg("ledger restored")
	}

	limits := risk.Limits{
		MaxNotionalPerTrade: cfg.Risk.MaxNotionalPerTrade,
		MaxPositionNotional: cfg.Risk.MaxPositionNotional,
	}
	trader := paper.NewTrader(cfg.Paper, limits, ledger, log)

	notifier := alert.New(cfg.Alerts, log)
	trader.SetNotifier(notifier)

	tradeLog := paper.NewTradeLog()
	for _, t := range persisted {
		_ = tradeLog.Record(t)
	}
	recorder, err := paper.NewJSONLRecorder(cfg.Paper.TradesDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open trade recorder")
	}
	trader.AddRecorder(tradeLog)
	trader.AddRecorder(recorder)

	buf := history.NewBuffer(cfg.History.MaxWindow, history.ParsePolicy(cfg.History.DuplicatePolicy))
	b := bot.New(cfg, source, buf, engine.New(cfg.Engine, log), trader, tradeLog, log)

	notifier.Startup("paper trading session started")
	runErr := b.Run(ctx)

	stats := tradeLog.Stats()
	log.Info().
		Int("total_trades", stats.TotalTrades).
		Int("closed", stats.ClosedTrades).
		Int("winners", stats.Winners).
		Int("losers", stats.Losers).
		Float64("win_rate", stats.WinRate).
		Float64("total_pnl", stats.TotalPnL).
		Float64("final_equity", ledger.Equity()).
		Msg("session summary")

	notifier.Shutdown("paper trading session ended")
	if w, ok := notifier.(interface{ Close() }); ok {
		w.Close()
	}
	if err := recorder.Close(); err != nil {
		log.Warn().Err(err).Msg("close trade recorder")
	}
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("trading loop failed")
	}
}
