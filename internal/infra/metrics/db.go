package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolConns, dbPoolAcquires, dbPoolAcquireWait) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_store_pool_connections",
			Help: "Payment store connections by state (total, idle, in_use, max).",
		},
		[]string{"state"},
	)
	dbPoolAcquires = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_store_pool_acquires",
			Help: "Connection acquires since start by kind (all, waited, canceled).",
		},
		[]string{"kind"},
	)
	dbPoolAcquireWait = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payment_store_pool_acquire_wait_seconds",
		Help: "Total time spent waiting for a payment store connection.",
	})
)

// PoolStats is a point-in-time copy of the pool counters.
type PoolStats struct {
	Total, Idle, InUse, Max int32
	Acquires, EmptyAcquires int64
	CanceledAcquires        int64
	AcquireWait             time.Duration
}

func SetPoolStats(s PoolStats) {
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(s.InUse))
	dbPoolConns.WithLabelValues("max").Set(float64(s.Max))
	dbPoolAcquires.WithLabelValues("all").Set(float64(s.Acquires))
	// an empty acquire is one that had to wait for a free connection
	dbPoolAcquires.WithLabelValues("waited").Set(float64(s.EmptyAcquires))
	dbPoolAcquires.WithLabelValues("canceled").Set(float64(s.CanceledAcquires))
	dbPoolAcquireWait.Set(s.AcquireWait.Seconds())
}
