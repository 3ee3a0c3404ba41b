// Package metrics exposes Prometheus collectors for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trades_opened_total",
		Help: "Total number of paper trades opened",
	}, []string{"side", "order_type"})

	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trades_closed_total",
		Help: "Total number of paper trades closed, by outcome",
	}, []string{"outcome"})

	TradesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_trades_cancelled_total",
		Help: "Total number of paper trades cancelled",
	})

	Revaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_revaluations_total",
		Help: "Total number of open-trade revaluations",
	})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Total number of rejected ledger operations",
	}, []string{"operation", "reason"})

	AnalyticsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_analytics_duration_seconds",
		Help:    "Time spent analyzing one closed trade",
		Buckets: prometheus.DefBuckets,
	})

	AnalyticsFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_analytics_failures_total",
		Help: "Total number of trade analyses that could not be saved",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_active_sessions",
		Help: "Number of sessions started minus sessions ended by this process",
	})
)

// Outcome labels a realized P&L.
func Outcome(pnl float64) string {
	switch {
	case pnl > 0:
		return "win"
	case pnl < 0:
		return "loss"
	default:
		return "flat"
	}
}
