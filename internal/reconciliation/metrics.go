package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	pendingWallets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "galoy",
		Subsystem: "reconciliation",
		Name:      "pending_wallets",
		Help:      "Number of wallets with pending payments in the last pass.",
	})

	outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "galoy",
		Subsystem: "reconciliation",
		Name:      "payment_outcomes_total",
		Help:      "Per-payment reconciliation outcomes.",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "galoy",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation passes in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	runErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "galoy",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation pass errors.",
	})
)

func init() {
	prometheus.MustRegister(
		pendingWallets,
		outcomes,
		runDuration,
		runErrors,
	)
}
