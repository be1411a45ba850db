package notify

import (
	"context"
	"errors"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentNotifier = (Multi)(nil)

// Multi fans out to every sink and joins their errors.
type Multi []adapter.PaymentNotifier

func (m Multi) BroadcastPaymentUpdate(ctx context.Context, s model.PaymentSnapshot) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.BroadcastPaymentUpdate(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
