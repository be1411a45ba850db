package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentsInconsistentTotal,
		paymentsPendingStale,
		paymentsRateLimitedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (pending/completed/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	// Provider accepted a push but the local record could not be written.
	paymentsInconsistentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_inconsistent_total",
			Help: "Accepted pushes whose pending payment could not be persisted.",
		},
	)

	paymentsPendingStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payments_pending_stale",
			Help: "Pending payments older than the stale threshold at the last scan.",
		},
	)

	paymentsRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_rate_limited_total",
			Help: "Initiations refused by the per-phone rate limiter.",
		},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncPaymentInconsistent() { paymentsInconsistentTotal.Inc() }

func SetPendingStale(n int) { paymentsPendingStale.Set(float64(n)) }

func IncRateLimited() { paymentsRateLimitedTotal.Inc() }
