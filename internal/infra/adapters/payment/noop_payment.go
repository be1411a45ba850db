package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hotspot-billing/internal/domain/ports/adapter"
)

var _ adapter.PushPaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway accepts every push and hands out sequential ids.
// Used with payment.mpesa.env=mock and in tests.
type NoopPaymentGateway struct {
	mu       sync.Mutex
	seq      int64
	requests []adapter.StkPushRequest
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) StkPush(ctx context.Context, req adapter.StkPushRequest) (*adapter.StkPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.requests = append(g.requests, req)
	stamp := time.Now().Format("0102150405")
	return &adapter.StkPushResponse{
		MerchantRequestID:   fmt.Sprintf("noop-%d-%s", g.seq, stamp),
		CheckoutRequestID:   fmt.Sprintf("ws_CO_noop_%d_%s", g.seq, stamp),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

// Requests returns a copy of every request seen so far.
func (g *NoopPaymentGateway) Requests() []adapter.StkPushRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]adapter.StkPushRequest(nil), g.requests...)
}
