package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"papertrader-go/internal/config"
	"papertrader-go/internal/market"
)

const defaultBinanceBaseURL = "https://api.binance.com"

// Binance fetches the latest closed kline over REST, one symbol per call.
type Binance struct {
	log      zerolog.Logger
	client   *http.Client
	baseURL  string
	interval string
	acc      *acceptance
}

// NewBinance builds the REST poller with the configured endpoint and interval.
func NewBinance(cfg config.Feed, log zerolog.Logger) *Binance {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
	}
	interval := cfg.Interval
	if interval == "" {
		interval = "15m"
	}
	timeout := time.Duration(cfg.FetchTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Binance{
		log:      log,
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		interval: interval,
		acc:      newAcceptance(),
	}
}

// Fetch requests the two most recent klines and normalizes the last closed one.
func (b *Binance) Fetch(ctx context.Context, symbol string) (market.Observation, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", b.interval)
	q.Set("limit", "2")
	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", b.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.Observation{}, fmt.Errorf("%w: create request: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", "papertrader-go/1.0")

	resp, err := b.client.Do(req)
	if err != nil {
		return market.Observation{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return market.Observation{}, fmt.Errorf("%w: unexpected status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return market.Observation{}, fmt.Errorf("%w: decode response: %v", ErrInvalidData, err)
	}
	if len(rows) == 0 {
		return market.Observation{}, fmt.Errorf("%w: no klines returned", ErrInvalidData)
	}

	// with limit=2 the final row is still forming; prefer the closed one
	row := rows[0]
	if len(rows) > 1 {
		row = rows[len(rows)-2]
	}
	obs, err := parseKlineRow(symbol, row)
	if err != nil {
		return market.Observation{}, err
	}
	return b.acc.accept(obs)
}

// parseKlineRow converts a Binance kline array
// [openTime, open, high, low, close, volume, ...] into an Observation.
func parseKlineRow(symbol string, row []any) (market.Observation, error) {
	if len(row) < 6 {
		return market.Observation{}, fmt.Errorf("%w: short kline row (%d fields)", ErrInvalidData, len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return market.Observation{}, fmt.Errorf("%w: kline open time not numeric", ErrInvalidData)
	}
	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		v, err := klineFloat(row[i])
		if err != nil {
			return market.Observation{}, fmt.Errorf("%w: kline field %d: %v", ErrInvalidData, i, err)
		}
		fields[i-1] = v
	}
	return market.Observation{
		Symbol: strings.ToUpper(symbol),
		Ts:     time.UnixMilli(int64(openMs)).UTC(),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Price:  fields[3],
		Volume: fields[4],
	}, nil
}

func klineFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unsupported kline value %T", v)
	}
}
