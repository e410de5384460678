// Package metrics exposes Prometheus instrumentation for the trading bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decisions counts pipeline outcomes by terminal state and stage.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aitrader",
		Name:      "decisions_total",
		Help:      "Pipeline decisions by outcome and stage.",
	}, []string{"outcome", "stage"})

	// Orders counts submitted orders by mode and side.
	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aitrader",
		Name:      "orders_submitted_total",
		Help:      "Orders submitted to the broker by mode and side.",
	}, []string{"mode", "side"})

	// DailyPnL tracks today's realized P&L.
	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aitrader",
		Name:      "daily_realized_pnl",
		Help:      "Realized P&L for the current trading day.",
	})

	// Iterations counts completed control-loop iterations.
	Iterations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aitrader",
		Name:      "iterations_total",
		Help:      "Completed control-loop iterations.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
