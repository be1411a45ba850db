package notify

import (
	"context"

	"github.com/rs/zerolog"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs updates instead of delivering them; used in dev.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) BroadcastPaymentUpdate(ctx context.Context, s model.PaymentSnapshot) error {
	n.log.Info().Str("payment_id", s.ID).Str("status", string(s.Status)).Int64("amount", s.Amount).Msg("[noop-notify] payment update")
	return nil
}
