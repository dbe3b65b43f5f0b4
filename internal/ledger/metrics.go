package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	entriesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "galoy",
		Subsystem: "ledger",
		Name:      "entries_recorded_total",
		Help:      "Total balanced ledger entries recorded.",
	})

	paymentsSettled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "galoy",
		Subsystem: "ledger",
		Name:      "payments_settled_total",
		Help:      "Total pending lightning payments transitioned to settled.",
	})

	paymentsReverted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "galoy",
		Subsystem: "ledger",
		Name:      "payments_reverted_total",
		Help:      "Total pending lightning payments voided after network failure.",
	})
)

func init() {
	prometheus.MustRegister(
		entriesRecorded,
		paymentsSettled,
		paymentsReverted,
	)
}
