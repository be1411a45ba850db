package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentCallbacksTotal,
		paymentsAmountMismatchTotal,
		paymentCallbackDuration,
	)
}

var (
	// outcome: transitioned|redelivery|synthesized|malformed|error|confirmation|validation
	paymentCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Provider callbacks by reconciliation outcome.",
		},
		[]string{"outcome"},
	)

	paymentsAmountMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_amount_mismatch_total",
			Help: "Callbacks whose reported amount differs from the stored amount.",
		},
	)

	paymentCallbackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_callback_duration_seconds",
			Help:    "Time spent reconciling one callback delivery.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)
)

func IncCallback(outcome string) {
	paymentCallbacksTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncAmountMismatch() { paymentsAmountMismatchTotal.Inc() }

func ObserveCallbackSeconds(s float64) { paymentCallbackDuration.Observe(s) }
