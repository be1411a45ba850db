//go:build !integration

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpers(t *testing.T) {
	t.Run("should normalize label values", func(t *testing.T) {
		before := testutil.ToFloat64(paymentsTotal.WithLabelValues("completed"))
		IncPayment("  Completed ")
		if got := testutil.ToFloat64(paymentsTotal.WithLabelValues("completed")); got != before+1 {
			t.Errorf("expected counter to grow by 1, got %v -> %v", before, got)
		}
	})

	t.Run("should record provider calls per endpoint", func(t *testing.T) {
		before := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("stkpush", "ok"))
		ObserveProviderCall("STKPush", "OK", 120*time.Millisecond)
		if got := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("stkpush", "ok")); got != before+1 {
			t.Errorf("expected one more provider call, got %v -> %v", before, got)
		}
	})

	t.Run("should set gauges", func(t *testing.T) {
		SetPendingStale(3)
		if got := testutil.ToFloat64(paymentsPendingStale); got != 3 {
			t.Errorf("expected stale gauge 3, got %v", got)
		}
		SetPoolStats(PoolStats{Total: 10, Idle: 7, InUse: 3, Max: 10, Acquires: 40, EmptyAcquires: 2, AcquireWait: 1500 * time.Millisecond})
		if got := testutil.ToFloat64(dbPoolConns.WithLabelValues("in_use")); got != 3 {
			t.Errorf("expected in_use 3, got %v", got)
		}
		if got := testutil.ToFloat64(dbPoolAcquires.WithLabelValues("waited")); got != 2 {
			t.Errorf("expected 2 waited acquires, got %v", got)
		}
		if got := testutil.ToFloat64(dbPoolAcquireWait); got != 1.5 {
			t.Errorf("expected 1.5s acquire wait, got %v", got)
		}
	})

	t.Run("should count http requests by route", func(t *testing.T) {
		before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/api/mpesa/callback", "200"))
		ObserveHTTPRequest("POST", "/api/mpesa/callback", 200, time.Millisecond)
		if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/api/mpesa/callback", "200")); got != before+1 {
			t.Errorf("expected one more request, got %v -> %v", before, got)
		}
	})

	t.Run("should register collectors only once", func(t *testing.T) {
		MustRegister()
		MustRegister()
	})

	t.Run("should publish every collector on a private registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		MustRegisterWith(reg)
		SetPendingStale(1)

		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("gather: %v", err)
		}
		names := map[string]bool{}
		for _, f := range families {
			names[f.GetName()] = true
		}
		for _, want := range []string{"payments_pending_stale", "payment_store_pool_acquire_wait_seconds"} {
			if !names[want] {
				t.Errorf("expected %s on the registry, got %v", want, names)
			}
		}
	})
}
