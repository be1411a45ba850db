package api

import (
	"encoding/json"
	"time"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/usecase"
)

type initiateRequest struct {
	Amount           any    `json:"amount"`
	PhoneNumber      string `json:"phoneNumber"`
	PlanID           string `json:"planId"`
	PlanName         string `json:"planName"`
	Type             string `json:"type"`
	AccountReference string `json:"accountReference"`
	UserID           string `json:"userId"`
}

func (r initiateRequest) toUseCase() usecase.InitiateRequest {
	typ := model.PaymentType(r.Type)
	if typ == "" {
		typ = model.PaymentTypePlan
	}
	return usecase.InitiateRequest{
		UserID:           r.UserID,
		PlanID:           r.PlanID,
		PlanName:         r.PlanName,
		Type:             typ,
		Amount:           r.Amount,
		PhoneNumber:      r.PhoneNumber,
		AccountReference: r.AccountReference,
	}
}

type stkPushRequest struct {
	Phone         string `json:"phone"`
	Amount        any    `json:"amount"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

func (r stkPushRequest) toUseCase() usecase.InitiateRequest {
	return usecase.InitiateRequest{
		Type:             model.PaymentTypeDirect,
		Amount:           r.Amount,
		PhoneNumber:      r.Phone,
		AccountReference: r.AccountNumber,
	}
}

type initiateResponse struct {
	PaymentID         string `json:"paymentId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
}

type paymentDTO struct {
	ID                 string                  `json:"id"`
	UserID             string                  `json:"userId"`
	PlanID             *string                 `json:"planId,omitempty"`
	PlanName           string                  `json:"planName"`
	Type               model.PaymentType       `json:"type"`
	Amount             int64                   `json:"amount"`
	PhoneNumber        string                  `json:"phoneNumber"`
	AccountReference   string                  `json:"accountReference,omitempty"`
	TransactionDesc    string                  `json:"transactionDesc,omitempty"`
	MerchantRequestID  *string                 `json:"merchantRequestId,omitempty"`
	CheckoutRequestID  *string                 `json:"checkoutRequestId,omitempty"`
	Status             model.PaymentStatus     `json:"status"`
	ResultCode         *int                    `json:"resultCode,omitempty"`
	ResultDesc         string                  `json:"resultDesc,omitempty"`
	MpesaReceiptNumber *string                 `json:"mpesaReceiptNumber,omitempty"`
	TransactionDate    *string                 `json:"transactionDate,omitempty"`
	CallbackMetadata   *model.CallbackMetadata `json:"callbackMetadata,omitempty"`
	RetryCount         int                     `json:"retryCount"`
	LastRetryAt        *time.Time              `json:"lastRetryAt,omitempty"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
	CompletedAt        *time.Time              `json:"completedAt,omitempty"`
}

func toPaymentDTO(p *model.Payment) paymentDTO {
	return paymentDTO{
		ID:                 p.ID,
		UserID:             p.UserID,
		PlanID:             p.PlanID,
		PlanName:           p.DisplayPlanName(),
		Type:               p.Type,
		Amount:             p.Amount,
		PhoneNumber:        p.PhoneNumber,
		AccountReference:   p.AccountReference,
		TransactionDesc:    p.TransactionDesc,
		MerchantRequestID:  p.MerchantRequestID,
		CheckoutRequestID:  p.CheckoutRequestID,
		Status:             p.Status,
		ResultCode:         p.ResultCode,
		ResultDesc:         p.ResultDesc,
		MpesaReceiptNumber: p.MpesaReceiptNumber,
		TransactionDate:    p.TransactionDate,
		CallbackMetadata:   p.CallbackMetadata,
		RetryCount:         p.RetryCount,
		LastRetryAt:        p.LastRetryAt,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		CompletedAt:        p.CompletedAt,
	}
}

func toPaymentDTOs(ps []*model.Payment) []paymentDTO {
	out := make([]paymentDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPaymentDTO(p))
	}
	return out
}

type revenueDTO struct {
	TotalRevenue      int64            `json:"totalRevenue"`
	TransactionsCount int              `json:"transactionsCount"`
	RevenueByPlan     map[string]int64 `json:"revenueByPlan"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           time.Time        `json:"endDate"`
}

type planRevenueDTO struct {
	Name    string `json:"name"`
	Revenue int64  `json:"revenue"`
	Count   int    `json:"count"`
}

type dashboardDTO struct {
	TotalRevenue       int64                       `json:"totalRevenue"`
	TotalTransactions  int                         `json:"totalTransactions"`
	RevenueByPlan      []planRevenueDTO            `json:"revenueByPlan"`
	RecentTransactions []paymentDTO                `json:"recentTransactions"`
	PaymentStats       map[model.PaymentStatus]int `json:"paymentStats"`
}

func toDashboardDTO(d *model.Dashboard) dashboardDTO {
	plans := make([]planRevenueDTO, 0, len(d.RevenueByPlan))
	for _, p := range d.RevenueByPlan {
		plans = append(plans, planRevenueDTO{Name: p.Name, Revenue: p.Revenue, Count: p.Count})
	}
	return dashboardDTO{
		TotalRevenue:       d.TotalRevenue,
		TotalTransactions:  d.TotalTransactions,
		RevenueByPlan:      plans,
		RecentTransactions: toPaymentDTOs(d.RecentTransactions),
		PaymentStats:       d.PaymentStats,
	}
}

type callbackLogDTO struct {
	ID         string             `json:"id"`
	Kind       model.CallbackKind `json:"kind"`
	PaymentID  string             `json:"paymentId,omitempty"`
	Payload    json.RawMessage    `json:"payload,omitempty"`
	ReceivedAt time.Time          `json:"receivedAt"`
}

type normalizeRequest struct {
	Phone string `json:"phone"`
}

type normalizeResponse struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}
