package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "observations_total", Help: "Price observations accepted into history"},
		[]string{"symbol"},
	)
	DataQualityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "data_quality_events_total", Help: "Samples discarded before reaching history"},
		[]string{"symbol", "reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals produced per evaluation cycle"},
		[]string{"symbol", "kind"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Simulated fills applied to the ledger"},
		[]string{"symbol", "side"},
	)
	RejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rejects_total", Help: "Signals rejected without a ledger mutation"},
		[]string{"symbol", "reason"},
	)
	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "equity", Help: "Current total equity (cash plus marked positions)"},
	)
	CashGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "cash", Help: "Current free cash balance"},
	)
)

func init() {
	prometheus.MustRegister(ObservationsTotal, DataQualityTotal, SignalsTotal, TradesTotal, RejectsTotal, EquityGauge, CashGauge)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
