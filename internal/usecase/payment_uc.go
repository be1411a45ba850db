// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/domain/ports/repository"
	"hotspot-billing/internal/infra/logging"
	"hotspot-billing/internal/infra/metrics"
)

const (
	maxAccountReferenceLen = 12
	maxTransactionDescLen  = 13
	directAccountReference = "DIRECT-PAYMENT"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Initiate validates the request, sends the STK push and records a pending payment.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Get(ctx context.Context, id string) (*model.Payment, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Payment, error)
}

// RateLimiter counts hits per key inside a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// InitiateRequest is the raw client input. Amount is validated with model.ValidateAmount
// so it may be any JSON number or numeric string.
type InitiateRequest struct {
	UserID           string
	PlanID           string
	PlanName         string
	Type             model.PaymentType
	Amount           any
	PhoneNumber      string
	AccountReference string
}

type InitiateResult struct {
	PaymentID         string
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
}

type PaymentConfig struct {
	CallbackBaseURL  string        // payment id is appended as a path segment
	AccountReference string        // used when neither the request nor the plan gives one
	Timeout          time.Duration // bound on the provider call
	RateLimit        int           // pushes per phone per window; 0 disables
	RateWindow       time.Duration
	RateKey          func(phone string) string
	Dev              bool // log phone numbers unredacted
}

type paymentUC struct {
	payments repository.PaymentRepository
	guests   repository.GuestUserRepository
	gateway  adapter.PushPaymentGateway
	tm       repository.TransactionManager
	limiter  RateLimiter
	cfg      PaymentConfig
	now      func() time.Time
	log      *zerolog.Logger
}

// NewPaymentUseCase wires the initiator. limiter may be nil.
func NewPaymentUseCase(
	payments repository.PaymentRepository,
	guests repository.GuestUserRepository,
	gateway adapter.PushPaymentGateway,
	tm repository.TransactionManager,
	limiter RateLimiter,
	cfg PaymentConfig,
	logger *zerolog.Logger,
) *paymentUC {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateKey == nil {
		cfg.RateKey = func(phone string) string { return "rate_limit:stk:" + phone }
	}
	cfg.CallbackBaseURL = strings.TrimRight(cfg.CallbackBaseURL, "/")
	return &paymentUC{
		payments: payments,
		guests:   guests,
		gateway:  gateway,
		tm:       tm,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
		log:      logger,
	}
}

type validInitiate struct {
	amount   int64
	phone    string
	planID   *string
	planName string
	typ      model.PaymentType
}

func validateInitiate(req InitiateRequest) (*validInitiate, error) {
	verr := domain.NewValidationError()
	v := &validInitiate{typ: req.Type}

	amount, err := model.ValidateAmount(req.Amount)
	if err != nil {
		verr.Add("amount", reason(err, domain.ErrInvalidAmount))
	}
	v.amount = amount

	phone, err := model.NormalizePhone(req.PhoneNumber)
	if err != nil {
		verr.Add("phoneNumber", reason(err, domain.ErrInvalidPhone))
	}
	v.phone = phone

	switch req.Type {
	case model.PaymentTypeDirect:
		v.planName = model.DirectPaymentPlanName
		v.planID = model.StrPtr(strings.TrimSpace(req.PlanID))
	case "", model.PaymentTypePlan:
		// planId is optional; without it the account reference falls back to config.
		v.typ = model.PaymentTypePlan
		if strings.TrimSpace(req.PlanName) == "" {
			verr.Add("planName", "required for plan payments")
		}
		v.planID = model.StrPtr(strings.TrimSpace(req.PlanID))
		v.planName = strings.TrimSpace(req.PlanName)
	default:
		verr.Add("type", "must be plan or direct")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return v, nil
}

// reason strips the sentinel prefix so the client sees only the detail.
func reason(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func (u *paymentUC) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()

	v, err := validateInitiate(req)
	if err != nil {
		return nil, err
	}

	if u.limiter != nil && u.cfg.RateLimit > 0 {
		ok, err := u.limiter.Allow(ctx, u.cfg.RateKey(v.phone), u.cfg.RateLimit, u.cfg.RateWindow)
		if err != nil {
			// a broken limiter must not block payments
			u.log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			metrics.IncRateLimited()
			u.log.Info().Str("phone", logging.Redact(v.phone, u.cfg.Dev)).Msg("stk push rate limited")
			return nil, domain.ErrRateLimited
		}
	}

	id := uuid.NewString()
	ctx = logging.WithPaymentID(ctx, id)
	log := logging.With(ctx, u.log)

	pushReq := adapter.StkPushRequest{
		Amount:           v.amount,
		PhoneNumber:      v.phone,
		CallbackURL:      u.cfg.CallbackBaseURL + "/" + id,
		AccountReference: u.accountReference(req.AccountReference, v),
		TransactionDesc:  truncate("Payment for "+v.planName, maxTransactionDescLen),
	}

	callCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	resp, err := u.gateway.StkPush(callCtx, pushReq)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("provider", u.gateway.Name()).Msg("stk push failed")
		return nil, err
	}

	now := u.now()
	p := &model.Payment{
		ID:                id,
		UserID:            strings.TrimSpace(req.UserID),
		PlanID:            v.planID,
		PlanName:          v.planName,
		Type:              v.typ,
		Amount:            v.amount,
		PhoneNumber:       v.phone,
		AccountReference:  pushReq.AccountReference,
		TransactionDesc:   pushReq.TransactionDesc,
		MerchantRequestID: model.StrPtr(resp.MerchantRequestID),
		CheckoutRequestID: model.StrPtr(resp.CheckoutRequestID),
		Status:            model.PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	userID := p.UserID
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// fn may run again after a serialization failure
		p.UserID = userID
		if p.UserID == "" {
			g, err := model.NewGuestUser(v.phone, now)
			if err != nil {
				return err
			}
			if err := u.guests.Save(ctx, tx, g); err != nil {
				return fmt.Errorf("save guest user: %w", err)
			}
			p.UserID = g.ID
		}
		return u.payments.Save(ctx, tx, p)
	})
	if err != nil {
		// The provider already holds the transaction; the callback will synthesize the record.
		metrics.IncPaymentInconsistent()
		log.Error().Err(err).
			Str("checkout_request_id", resp.CheckoutRequestID).
			Str("merchant_request_id", resp.MerchantRequestID).
			Msg("stk push accepted but payment was not persisted")
	} else {
		metrics.IncPayment(string(model.PaymentStatusPending))
		log.Info().
			Str("checkout_request_id", resp.CheckoutRequestID).
			Str("phone", logging.Redact(v.phone, u.cfg.Dev)).
			Int64("amount", v.amount).
			Msg("stk push accepted")
	}

	return &InitiateResult{
		PaymentID:         id,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

func (u *paymentUC) accountReference(requested string, v *validInitiate) string {
	ref := strings.TrimSpace(requested)
	if ref == "" {
		switch {
		case v.typ == model.PaymentTypeDirect:
			ref = directAccountReference
		case v.planID != nil:
			ref = "PLAN-" + *v.planID
		default:
			ref = u.cfg.AccountReference
		}
	}
	return truncate(ref, maxAccountReferenceLen)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (u *paymentUC) Get(ctx context.Context, id string) (*model.Payment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty payment id", domain.ErrInvalidArgument)
	}
	return u.payments.FindByID(ctx, nil, id)
}

func (u *paymentUC) ListRecent(ctx context.Context, limit int) ([]*model.Payment, error) {
	return u.payments.ListRecent(ctx, nil, clampLimit(limit))
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return 20
	case n > 100:
		return 100
	}
	return n
}

// IsProviderTimeout reports whether err came from the provider call running out of time.
func IsProviderTimeout(err error) bool {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Message == "timeout" {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
