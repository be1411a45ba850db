package adapter

import "context"

// StkPushRequest is a fully normalized push-payment request.
type StkPushRequest struct {
	Amount           int64
	PhoneNumber      string // canonical 254XXXXXXXXX
	CallbackURL      string
	AccountReference string
	TransactionDesc  string
}

// StkPushResponse is the provider's synchronous acceptance of a push.
type StkPushResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

// PushPaymentGateway is the hex port for STK-push style providers.
// Errors are *domain.ProviderError wrapping one of the ErrProvider* sentinels.
type PushPaymentGateway interface {
	Name() string
	StkPush(ctx context.Context, req StkPushRequest) (*StkPushResponse, error)
}
