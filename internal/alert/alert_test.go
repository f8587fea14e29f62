package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"papertrader-go/internal/config"
	"papertrader-go/internal/market"
	"papertrader-go/internal/paper"
	"papertrader-go/internal/util"
)

func TestWebhookNotifierDelivers(t *testing.T) {
	var mu sync.Mutex
	var got []payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.Alerts{WebhookURL: srv.URL}, util.NewLogger("disabled"))
	n.Startup("session started")
	n.TradeExecuted(paper.Trade{ID: 1, Symbol: "BTCUSDT", Kind: market.EnterLong, Qty: 1, Price: 100})
	n.TradeRejected("ETHUSDT", "insufficient cash")
	n.Shutdown("session ended")
	n.Close() // drains the queue

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 4 {
		t.Fatalf("expected 4 deliveries, got %d", len(got))
	}
	if got[0].Type != "startup" || got[0].Text != "session started" {
		t.Fatalf("unexpected first payload: %+v", got[0])
	}
	if got[1].Type != "trade" || got[1].Trade == nil || got[1].Trade.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected trade payload: %+v", got[1])
	}
	if got[2].Type != "reject" || got[2].Reason != "insufficient cash" {
		t.Fatalf("unexpected reject payload: %+v", got[2])
	}
}

func TestWebhookNotifierDropsOnOverflow(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	n := NewWebhookNotifier(config.Alerts{WebhookURL: srv.URL}, util.NewLogger("disabled"))
	// worker is stuck on the first event; flooding past the queue size
	// must drop, not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < webhookQueueSize*3; i++ {
			n.Startup("flood")
		}
		close(done)
	}()
	<-done
}

func TestNewPicksSinks(t *testing.T) {
	log := util.NewLogger("disabled")
	if _, ok := New(config.Alerts{}, log).(*LogNotifier); !ok {
		t.Fatal("expected bare log notifier without webhook url")
	}
	if _, ok := New(config.Alerts{WebhookURL: "http://127.0.0.1:9"}, log).(multi); !ok {
		t.Fatal("expected multi notifier with webhook url")
	}
}

func TestMultiFansOut(t *testing.T) {
	a := &countNotifier{}
	b := &countNotifier{}
	m := Multi(a, b)
	m.TradeExecuted(paper.Trade{})
	m.TradeRejected("BTCUSDT", "x")
	m.Startup("s")
	m.Shutdown("s")
	if a.calls != 4 || b.calls != 4 {
		t.Fatalf("expected 4 calls each, got %d and %d", a.calls, b.calls)
	}
}

type countNotifier struct{ calls int }

func (c *countNotifier) TradeExecuted(paper.Trade)    { c.calls++ }
func (c *countNotifier) TradeRejected(string, string) { c.calls++ }
func (c *countNotifier) Startup(string)               { c.calls++ }
func (c *countNotifier) Shutdown(string)              { c.calls++ }
