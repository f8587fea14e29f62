package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"papertrader-go/internal/config"
	"papertrader-go/internal/market"
)

const defaultBinanceWSURL = "wss://stream.binance.com:9443"

type klineEnvelope struct {
	Stream string       `json:"stream"`
	Data   klineMessage `json:"data"`
}

type klineMessage struct {
	Kline klinePayload `json:"k"`
}

type klinePayload struct {
	Symbol   string `json:"s"`
	Interval string `json:"i"`
	OpenTime int64  `json:"t"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	IsClosed bool   `json:"x"`
}

// BinanceWS keeps a combined kline stream open in the background and
// serves Fetch from the cached latest candle per symbol. A cache entry
// older than the staleness bound reads as unavailable rather than as a
// fresh observation.
type BinanceWS struct {
	log        zerolog.Logger
	wsBase     string
	interval   string
	symbols    []string
	staleAfter time.Duration
	acc        *acceptance

	mu     sync.RWMutex
	latest map[string]cachedCandle
}

type cachedCandle struct {
	obs      market.Observation
	received time.Time
}

// NewBinanceWS builds the streaming source; call Start before Fetch.
func NewBinanceWS(cfg config.Feed, log zerolog.Logger) *BinanceWS {
	interval := cfg.Interval
	if interval == "" {
		interval = "15m"
	}
	stale := time.Duration(cfg.StaleAfterMs) * time.Millisecond
	if stale <= 0 {
		stale = 2 * time.Minute
	}
	wsBase := defaultBinanceWSURL
	if strings.HasPrefix(cfg.BaseURL, "ws") {
		wsBase = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &BinanceWS{
		log:        log,
		wsBase:     wsBase,
		interval:   interval,
		symbols:    append([]string(nil), cfg.Symbols...),
		staleAfter: stale,
		acc:        newAcceptance(),
		latest:     make(map[string]cachedCandle),
	}
}

// Start launches the stream consumer with reconnect backoff.
func (f *BinanceWS) Start(ctx context.Context) {
	go f.run(ctx)
}

func (f *BinanceWS) run(ctx context.Context) {
	if len(f.symbols) == 0 {
		f.log.Warn().Msg("binance ws source started with no symbols")
		return
	}
	streams := make([]string, len(f.symbols))
	for i, sym := range f.symbols {
		streams[i] = strings.ToLower(sym) + "@kline_" + f.interval
	}
	url := fmt.Sprintf("%s/stream?streams=%s", f.wsBase, strings.Join(streams, "/"))

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.consume(ctx, url); err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn().Err(err).Msg("binance kline stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return
	}
}

func (f *BinanceWS) consume(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Strs("symbols", f.symbols).Str("interval", f.interval).Msg("connected kline stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("kline stream ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env klineEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode kline message")
			continue
		}
		obs, err := parseKlinePayload(env.Data.Kline)
		if err != nil {
			f.log.Warn().Err(err).Msg("invalid kline payload")
			continue
		}
		f.store(obs)
	}
}

func (f *BinanceWS) store(obs market.Observation) {
	f.mu.Lock()
	f.latest[obs.Symbol] = cachedCandle{obs: obs, received: time.Now()}
	f.mu.Unlock()
}

// Fetch serves the cached latest candle for the symbol.
func (f *BinanceWS) Fetch(ctx context.Context, symbol string) (market.Observation, error) {
	if err := ctx.Err(); err != nil {
		return market.Observation{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	f.mu.RLock()
	entry, ok := f.latest[strings.ToUpper(symbol)]
	f.mu.RUnlock()

	if !ok {
		return market.Observation{}, fmt.Errorf("%w: no candle streamed yet for %s", ErrSourceUnavailable, symbol)
	}
	if time.Since(entry.received) > f.staleAfter {
		return market.Observation{}, fmt.Errorf("%w: cached candle for %s is stale", ErrSourceUnavailable, symbol)
	}
	// the cache may hold the same forming candle across consecutive
	// fetches; acceptance turns that into InvalidData, which the caller
	// counts as a data-quality skip rather than an outage
	return f.acc.accept(entry.obs)
}

func parseKlinePayload(k klinePayload) (market.Observation, error) {
	px, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return market.Observation{}, fmt.Errorf("close %q: %w", k.Close, err)
	}
	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	vol, _ := strconv.ParseFloat(k.Volume, 64)
	return market.Observation{
		Symbol: strings.ToUpper(k.Symbol),
		Ts:     time.UnixMilli(k.OpenTime).UTC(),
		Price:  px,
		Open:   open,
		High:   high,
		Low:    low,
		Volume: vol,
	}, nil
}
