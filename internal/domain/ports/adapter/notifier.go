package adapter

import (
	"context"

	"hotspot-billing/internal/domain/model"
)

// PaymentNotifier fans a reconciled payment out to real-time subscribers.
type PaymentNotifier interface {
	BroadcastPaymentUpdate(ctx context.Context, snap model.PaymentSnapshot) error
}
