package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"papertrader-go/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Paper Trader Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit bankroll and fill model")
		fmt.Println("3) Edit signal engine knobs")
		fmt.Println("4) Edit symbols")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch paper trader")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editBankroll(reader, cfg)
		case "3":
			editEngine(reader, cfg)
		case "4":
			editSymbols(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchPaper(reader)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Feed provider: %s (%s klines, poll every %dms)\n", cfg.Feed.Provider, cfg.Feed.Interval, cfg.Feed.PollIntervalMs)
	fmt.Println("Symbols:", strings.Join(cfg.Feed.Symbols, ", "))
	fmt.Printf("Starting cash: $%.2f\n", cfg.Paper.StartingCash)
	fmt.Printf("Sizing: %s (frac %.2f, fixed qty %.4f)\n", cfg.Paper.SizingMode, cfg.Paper.EquityFrac, cfg.Paper.FixedQty)
	fmt.Printf("Slippage: %.1f bps | fee: %.1f bps + $%.2f\n", cfg.Paper.SlippageBps, cfg.Paper.FeeBps, cfg.Paper.FeeFixed)
	fmt.Printf("Per-trade notional cap: $%.2f | per-symbol cap: $%.2f\n", cfg.Risk.MaxNotionalPerTrade, cfg.Risk.MaxPositionNotional)
	fmt.Printf("Entry score: %d/5 | TP %.2f%% | SL %.2f%% | trail %.2f%% | max hold %dm\n",
		cfg.Engine.MinScore, cfg.Engine.TakeProfit*100, cfg.Engine.StopLoss*100, cfg.Engine.TrailPct*100, cfg.Engine.MaxHoldMins)
	fmt.Printf("History window: %d bars (duplicates: %s)\n", cfg.History.MaxWindow, cfg.History.DuplicatePolicy)
	fmt.Printf("Trades dir: %s\n", cfg.Paper.TradesDir)
}

func editBankroll(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Bankroll / Fill Model ---")
	cfg.Paper.StartingCash = promptFloat(reader, "Starting cash", cfg.Paper.StartingCash)
	cfg.Paper.EquityFrac = promptPercent(reader, "Equity fraction per entry (%)", cfg.Paper.EquityFrac)
	cfg.Paper.SlippageBps = promptFloat(reader, "Slippage (bps)", cfg.Paper.SlippageBps)
	cfg.Paper.FeeBps = promptFloat(reader, "Fee (bps)", cfg.Paper.FeeBps)
	cfg.Paper.FeeFixed = promptFloat(reader, "Fixed fee per fill (USD)", cfg.Paper.FeeFixed)
	cfg.Risk.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD)", cfg.Risk.MaxNotionalPerTrade)
	cfg.Risk.MaxPositionNotional = promptFloat(reader, "Max position notional (USD)", cfg.Risk.MaxPositionNotional)
}

func editEngine(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Signal Engine ---")
	cfg.Engine.MinScore = int(promptFloat(reader, "Min entry score (of 5)", float64(cfg.Engine.MinScore)))
	cfg.Engine.TakeProfit = promptPercent(reader, "Take profit (%)", cfg.Engine.TakeProfit)
	cfg.Engine.StopLoss = promptPercent(reader, "Stop loss (%)", cfg.Engine.StopLoss)
	cfg.Engine.TrailPct = promptPercent(reader, "Trailing stop (%)", cfg.Engine.TrailPct)
	cfg.Engine.MaxHoldMins = int(promptFloat(reader, "Max hold (minutes)", float64(cfg.Engine.MaxHoldMins)))
}

func editSymbols(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Symbols ---")
	fmt.Printf("Current symbols: %s\n", strings.Join(cfg.Feed.Symbols, ", "))
	fmt.Print("Enter symbols comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		parts := strings.Split(strings.TrimSpace(line), ",")
		cfg.Feed.Symbols = nil
		for _, p := range parts {
			if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
				cfg.Feed.Symbols = append(cfg.Feed.Symbols, trimmed)
			}
		}
	}
}

func launchPaper(reader *bufio.Reader) {
	fmt.Println("Launching paper trader (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/paper")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start trader: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the trader and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
