package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal) }

// sink: redis|telegram|async ; result: sent|error|dropped
var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Payment update notifications by sink and result.",
	},
	[]string{"sink", "result"},
)

func IncNotification(sink, result string) {
	notificationsTotal.WithLabelValues(norm(sink), norm(result)).Inc()
}
