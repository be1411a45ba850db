package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/infra/metrics"
	"hotspot-billing/internal/infra/worker"
)

type submitter interface {
	Submit(task worker.Task) error
}

var _ adapter.PaymentNotifier = (*Async)(nil)

// Async hands delivery to a worker pool so a slow sink never delays the
// provider acknowledgement. A saturated pool drops the update.
type Async struct {
	next    adapter.PaymentNotifier
	pool    submitter
	timeout time.Duration
	log     *zerolog.Logger
}

func NewAsync(next adapter.PaymentNotifier, pool submitter, timeout time.Duration, logger *zerolog.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "AsyncNotifier").Logger()
	return &Async{next: next, pool: pool, timeout: timeout, log: &l}
}

// BroadcastPaymentUpdate only reports submission failures; delivery errors are logged by the task.
func (a *Async) BroadcastPaymentUpdate(_ context.Context, s model.PaymentSnapshot) error {
	err := a.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.next.BroadcastPaymentUpdate(ctx, s); err != nil {
			a.log.Warn().Err(err).Str("payment_id", s.ID).Msg("payment update delivery failed")
			return err
		}
		return nil
	})
	if err != nil {
		metrics.IncNotification("async", "dropped")
		a.log.Warn().Err(err).Str("payment_id", s.ID).Msg("payment update dropped")
	}
	return err
}
