package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/infra/metrics"
)

// Publisher is the slice of the redis client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

var _ adapter.PaymentNotifier = (*RedisNotifier)(nil)

// RedisNotifier publishes the snapshot as JSON on a pub/sub channel that
// real-time gateways subscribe to.
type RedisNotifier struct {
	pub     Publisher
	channel string
}

func NewRedisNotifier(pub Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = "payment-updated"
	}
	return &RedisNotifier{pub: pub, channel: channel}
}

func (n *RedisNotifier) BroadcastPaymentUpdate(ctx context.Context, s model.PaymentSnapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := n.pub.Publish(ctx, n.channel, body); err != nil {
		metrics.IncNotification("redis", "error")
		return fmt.Errorf("publish %s: %w", n.channel, err)
	}
	metrics.IncNotification("redis", "sent")
	return nil
}
