package model

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // push sent; awaiting provider callback
	PaymentStatusCompleted PaymentStatus = "completed" // callback reported ResultCode 0
	PaymentStatusFailed    PaymentStatus = "failed"    // callback reported any other ResultCode
)

// IsTerminal reports whether no further status transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// CanTransition allows only pending -> completed|failed.
func CanTransition(from, to PaymentStatus) bool {
	return from == PaymentStatusPending && to.IsTerminal()
}

// StatusFromResultCode maps a provider result code onto a terminal status.
// Any nonzero code, negative included, is a failure.
func StatusFromResultCode(code int) PaymentStatus {
	if code == 0 {
		return PaymentStatusCompleted
	}
	return PaymentStatusFailed
}

type PaymentType string

const (
	PaymentTypePlan     PaymentType = "plan"
	PaymentTypeDirect   PaymentType = "direct"
	PaymentTypeCallback PaymentType = "callback" // synthesized from an unmatched callback
)

const (
	DirectPaymentPlanName   = "Direct Payment"
	CallbackPaymentPlanName = "From Callback"
	UnknownUserID           = "unknown"
)

// Payment records one STK push and its reconciled outcome.
type Payment struct {
	ID               string  // UUID, generated before the push so it can ride in the callback URL
	UserID           string  // registered user or guest user id
	PlanID           *string // nil for direct payments
	PlanName         string  // never empty
	Type             PaymentType
	Amount           int64  // whole KES
	PhoneNumber      string // canonical 254XXXXXXXXX
	AccountReference string
	TransactionDesc  string

	MerchantRequestID *string
	CheckoutRequestID *string

	Status             PaymentStatus
	ResultCode         *int
	ResultDesc         string
	MpesaReceiptNumber *string // set iff ResultCode == 0
	TransactionDate    *string // provider yyyyMMddHHmmss
	CallbackPayload    json.RawMessage
	CallbackMetadata   *CallbackMetadata

	RetryCount  int
	LastRetryAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// DisplayPlanName is the plan label used by reports.
func (p *Payment) DisplayPlanName() string {
	if p.PlanName == "" {
		return DirectPaymentPlanName
	}
	return p.PlanName
}

// Apply copies a winning reconciliation outcome onto p.
func (p *Payment) Apply(o *CallbackOutcome) {
	code := o.ResultCode
	p.Status = o.Status
	p.ResultCode = &code
	p.ResultDesc = o.ResultDesc
	p.MpesaReceiptNumber = nil
	if code == 0 && o.ReceiptNumber != nil {
		r := *o.ReceiptNumber
		p.MpesaReceiptNumber = &r
	}
	p.TransactionDate = o.TransactionDate
	p.CallbackPayload = o.Payload
	p.CallbackMetadata = o.Metadata
	p.UpdatedAt = o.At
	if o.Status == PaymentStatusCompleted {
		at := o.At
		p.CompletedAt = &at
	}
}

// Snapshot is the view handed to notification sinks.
func (p *Payment) Snapshot() PaymentSnapshot {
	return PaymentSnapshot{
		ID:            p.ID,
		Status:        p.Status,
		Amount:        p.Amount,
		PhoneNumber:   p.PhoneNumber,
		ReceiptNumber: p.MpesaReceiptNumber,
		ResultDesc:    p.ResultDesc,
		CreatedAt:     p.CreatedAt,
	}
}

// PaymentSnapshot is the finalized state broadcast after reconciliation.
type PaymentSnapshot struct {
	ID            string        `json:"_id"`
	Status        PaymentStatus `json:"status"`
	Amount        int64         `json:"amount"`
	PhoneNumber   string        `json:"phoneNumber"`
	ReceiptNumber *string       `json:"mpesaReceiptNumber,omitempty"`
	ResultDesc    string        `json:"resultDesc,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// CorrelationIDs are the provider-issued keys used to find a payment.
type CorrelationIDs struct {
	PaymentID         string // path-embedded id, highest priority
	CheckoutRequestID string
	MerchantRequestID string
}

// Empty reports whether no key at all is available to match or dedupe on.
func (c CorrelationIDs) Empty() bool {
	return c.PaymentID == "" && c.CheckoutRequestID == "" && c.MerchantRequestID == ""
}

func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
