package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(providerRequestsTotal, providerLatencyMs)
}

var (
	// endpoint: oauth|stkpush ; result: ok|rejected|auth|unavailable
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_provider_requests_total",
			Help: "Outbound payment provider calls by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	providerLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_provider_latency_ms",
			Help:    "Payment provider call latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 15000},
		},
		[]string{"endpoint"},
	)
)

func ObserveProviderCall(endpoint, result string, d time.Duration) {
	providerRequestsTotal.WithLabelValues(norm(endpoint), norm(result)).Inc()
	providerLatencyMs.WithLabelValues(norm(endpoint)).Observe(float64(d.Milliseconds()))
}
