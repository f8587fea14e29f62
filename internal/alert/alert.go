// Package alert fans trade lifecycle events out to notification sinks.
// Delivery is best effort; a slow or dead sink never blocks trading.
package alert

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"papertrader-go/internal/config"
	"papertrader-go/internal/paper"
	"papertrader-go/internal/util"
)

// Notifier extends the trade event sink with session lifecycle events.
type Notifier interface {
	paper.Notifier
	Startup(msg string)
	Shutdown(msg string)
}

// New builds the configured notifier chain. The structured log sink is
// always present; a webhook sink is added when a URL is configured.
func New(cfg config.Alerts, log zerolog.Logger) Notifier {
	sinks := []Notifier{NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhookNotifier(cfg, log))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return Multi(sinks...)
}

// Multi fans every event out to all sinks in order.
func Multi(sinks ...Notifier) Notifier { return multi(sinks) }

type multi []Notifier

func (m multi) TradeExecuted(t paper.Trade) {
	for _, s := range m {
		s.TradeExecuted(t)
	}
}

func (m multi) TradeRejected(symbol, reason string) {
	for _, s := range m {
		s.TradeRejected(symbol, reason)
	}
}

func (m multi) Startup(msg string) {
	for _, s := range m {
		s.Startup(msg)
	}
}

func (m multi) Shutdown(msg string) {
	for _, s := range m {
		s.Shutdown(msg)
	}
}

// Close shuts down any sinks that own background workers.
func (m multi) Close() {
	for _, s := range m {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: util.Component(log, "alert")}
}

func (n *LogNotifier) TradeExecuted(t paper.Trade) {
	event := n.log.Info().
		Str("symbol", t.Symbol).
		Str("kind", string(t.Kind)).
		Float64("qty", t.Qty).
		Float64("price", t.Price)
	if t.RealizedPnL != 0 {
		event = event.Float64("realized_pnl", t.RealizedPnL)
	}
	event.Msg("alert: trade")
}

func (n *LogNotifier) TradeRejected(symbol, reason string) {
	n.log.Warn().Str("symbol", symbol).Str("reason", reason).Msg("alert: trade rejected")
}

func (n *LogNotifier) Startup(msg string)  { n.log.Info().Msg("alert: " + msg) }
func (n *LogNotifier) Shutdown(msg string) { n.log.Info().Msg("alert: " + msg) }

// payload is the JSON body posted to the webhook.
type payload struct {
	Type   string       `json:"type"`
	Ts     time.Time    `json:"ts"`
	Text   string       `json:"text,omitempty"`
	Symbol string       `json:"symbol,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Trade  *paper.Trade `json:"trade,omitempty"`
}

// WebhookNotifier posts events as JSON to an HTTP endpoint. Events are
// queued to a bounded channel drained by one worker goroutine; when the
// queue is full the event is dropped and counted in the log.
type WebhookNotifier struct {
	log    zerolog.Logger
	url    string
	client *http.Client
	queue  chan payload
	done   chan struct{}
}

const webhookQueueSize = 64

func NewWebhookNotifier(cfg config.Alerts, log zerolog.Logger) *WebhookNotifier {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	n := &WebhookNotifier{
		log:    util.Component(log, "webhook"),
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		queue:  make(chan payload, webhookQueueSize),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *WebhookNotifier) run() {
	defer close(n.done)
	for p := range n.queue {
		n.post(p)
	}
}

func (n *WebhookNotifier) post(p payload) {
	body, err := json.Marshal(p)
	if err != nil {
		n.log.Warn().Err(err).Msg("webhook payload encode failed")
		return
	}
	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.log.Warn().Err(err).Msg("webhook post failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn().Int("status", resp.StatusCode).Msg("webhook rejected payload")
	}
}

func (n *WebhookNotifier) enqueue(p payload) {
	select {
	case n.queue <- p:
	default:
		n.log.Warn().Str("type", p.Type).Msg("webhook queue full, event dropped")
	}
}

func (n *WebhookNotifier) TradeExecuted(t paper.Trade) {
	n.enqueue(payload{Type: "trade", Ts: time.Now().UTC(), Symbol: t.Symbol, Trade: &t})
}

func (n *WebhookNotifier) TradeRejected(symbol, reason string) {
	n.enqueue(payload{Type: "reject", Ts: time.Now().UTC(), Symbol: symbol, Reason: reason})
}

func (n *WebhookNotifier) Startup(msg string) {
	n.enqueue(payload{Type: "startup", Ts: time.Now().UTC(), Text: msg})
}

func (n *WebhookNotifier) Shutdown(msg string) {
	n.enqueue(payload{Type: "shutdown", Ts: time.Now().UTC(), Text: msg})
}

// Close drains queued events and stops the worker.
func (n *WebhookNotifier) Close() {
	close(n.queue)
	<-n.done
}
