package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMalformedCallback = errors.New("callback body has no stkCallback")

// CallbackAck is the only body ever returned to the provider.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func SuccessAck() *CallbackAck { return &CallbackAck{ResultCode: 0, ResultDesc: "Success"} }

// AcceptedAck answers C2B confirmation and validation deliveries.
func AcceptedAck() *CallbackAck { return &CallbackAck{ResultCode: 0, ResultDesc: "Accepted"} }

type callbackEnvelope struct {
	Body *struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback is the provider's result notification for one push.
type StkCallback struct {
	MerchantRequestID string       `json:"MerchantRequestID"`
	CheckoutRequestID string       `json:"CheckoutRequestID"`
	ResultCode        json.Number  `json:"ResultCode"`
	ResultDesc        string       `json:"ResultDesc"`
	CallbackMetadata  *CallbackRaw `json:"CallbackMetadata,omitempty"`
}

type CallbackRaw struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// ParseStkCallback extracts Body.stkCallback from a raw delivery.
// Numbers are kept as json.Number so receipt dates and MSISDNs survive intact.
func ParseStkCallback(raw []byte) (*StkCallback, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var env callbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Body == nil || env.Body.StkCallback == nil {
		return nil, ErrMalformedCallback
	}
	cb := env.Body.StkCallback
	if cb.ResultCode == "" {
		return nil, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}
	if _, err := cb.Code(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	return cb, nil
}

// Code returns ResultCode as an int.
func (c *StkCallback) Code() (int, error) {
	n, err := c.ResultCode.Int64()
	if err != nil {
		return 0, fmt.Errorf("result code %q: %w", c.ResultCode.String(), err)
	}
	return int(n), nil
}

func (c *StkCallback) CorrelationIDs(pathID string) CorrelationIDs {
	return CorrelationIDs{
		PaymentID:         strings.TrimSpace(pathID),
		CheckoutRequestID: strings.TrimSpace(c.CheckoutRequestID),
		MerchantRequestID: strings.TrimSpace(c.MerchantRequestID),
	}
}

// CallbackMetadata is the derived name lookup over CallbackMetadata.Item.
// Absent names stay nil.
type CallbackMetadata struct {
	Amount             *decimal.Decimal `json:"Amount"`
	MpesaReceiptNumber *string          `json:"MpesaReceiptNumber"`
	TransactionDate    *string          `json:"TransactionDate"`
	PhoneNumber        *string          `json:"PhoneNumber"`
}

// Metadata looks up the well-known items by name.
func (c *StkCallback) Metadata() *CallbackMetadata {
	md := &CallbackMetadata{}
	if c.CallbackMetadata == nil {
		return md
	}
	for _, it := range c.CallbackMetadata.Item {
		switch it.Name {
		case "Amount":
			if d, ok := itemDecimal(it.Value); ok {
				md.Amount = &d
			}
		case "MpesaReceiptNumber":
			md.MpesaReceiptNumber = itemString(it.Value)
		case "TransactionDate":
			md.TransactionDate = itemString(it.Value)
		case "PhoneNumber":
			md.PhoneNumber = itemString(it.Value)
		}
	}
	return md
}

// AmountInt returns the reported amount rounded to whole units, if present.
func (m *CallbackMetadata) AmountInt() (int64, bool) {
	if m == nil || m.Amount == nil {
		return 0, false
	}
	return m.Amount.Round(0).IntPart(), true
}

func itemString(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return StrPtr(strings.TrimSpace(t))
	case json.Number:
		return StrPtr(t.String())
	default:
		return StrPtr(fmt.Sprint(t))
	}
}

func itemDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	}
	return decimal.Decimal{}, false
}

// CallbackOutcome is what a single delivery asks the store to apply.
type CallbackOutcome struct {
	Status          PaymentStatus
	ResultCode      int
	ResultDesc      string
	ReceiptNumber   *string
	TransactionDate *string
	Payload         json.RawMessage
	Metadata        *CallbackMetadata
	At              time.Time
}

// OutcomeFrom builds a CallbackOutcome from a parsed callback.
// The receipt is only kept for ResultCode 0.
func OutcomeFrom(cb *StkCallback, raw []byte, at time.Time) (*CallbackOutcome, error) {
	code, err := cb.Code()
	if err != nil {
		return nil, err
	}
	md := cb.Metadata()
	o := &CallbackOutcome{
		Status:          StatusFromResultCode(code),
		ResultCode:      code,
		ResultDesc:      cb.ResultDesc,
		TransactionDate: md.TransactionDate,
		Payload:         json.RawMessage(append([]byte(nil), raw...)),
		Metadata:        md,
		At:              at,
	}
	if code == 0 {
		o.ReceiptNumber = md.MpesaReceiptNumber
	}
	return o, nil
}

type CallbackKind string

const (
	CallbackKindStk          CallbackKind = "stk"
	CallbackKindConfirmation CallbackKind = "confirmation"
	CallbackKindValidation   CallbackKind = "validation"
)

// CallbackLog is an append-only audit row for every inbound provider delivery.
type CallbackLog struct {
	ID         string
	Kind       CallbackKind
	PaymentID  string
	Payload    json.RawMessage
	ReceivedAt time.Time
}
