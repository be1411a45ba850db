package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// pending holds every collector declared in this package. Each file's init()
// appends to it.
var (
	pending     []prometheus.Collector
	defaultOnce sync.Once
)

func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister publishes the package collectors on the default registry,
// which is what Handler serves. Repeat calls do nothing.
func MustRegister() {
	defaultOnce.Do(func() { MustRegisterWith(prometheus.DefaultRegisterer) })
}

// MustRegisterWith publishes the package collectors on reg. It panics if reg
// already holds any of them.
func MustRegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(pending...)
}
