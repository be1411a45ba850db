// File: internal/usecase/callback_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/domain/ports/repository"
	"hotspot-billing/internal/infra/logging"
	"hotspot-billing/internal/infra/metrics"
)

const revenueCurrency = "KES"

var _ CallbackUseCase = (*callbackUC)(nil)

// CallbackUseCase reconciles provider deliveries. None of its entry points
// return an error: the provider always gets an acknowledgement.
type CallbackUseCase interface {
	// Reconcile applies one STK callback. pathPaymentID is the id embedded in
	// the callback URL, or empty.
	Reconcile(ctx context.Context, pathPaymentID string, raw []byte) *model.CallbackAck
	// Record stores a C2B confirmation/validation delivery for audit.
	Record(ctx context.Context, kind model.CallbackKind, raw []byte) *model.CallbackAck
	RecentLogs(ctx context.Context, limit int) ([]*model.CallbackLog, error)
}

type callbackUC struct {
	payments repository.PaymentRepository
	logs     repository.CallbackLogRepository
	notifier adapter.PaymentNotifier
	now      func() time.Time
	log      *zerolog.Logger
}

func NewCallbackUseCase(
	payments repository.PaymentRepository,
	logs repository.CallbackLogRepository,
	notifier adapter.PaymentNotifier,
	logger *zerolog.Logger,
) *callbackUC {
	l := logger.With().Str("component", "Reconciler").Logger()
	return &callbackUC{payments: payments, logs: logs, notifier: notifier, now: time.Now, log: &l}
}

func (u *callbackUC) Reconcile(ctx context.Context, pathPaymentID string, raw []byte) *model.CallbackAck {
	defer logging.TraceDuration(u.log, "CallbackUC.Reconcile")()
	start := time.Now()
	defer func() { metrics.ObserveCallbackSeconds(time.Since(start).Seconds()) }()

	u.appendLog(ctx, model.CallbackKindStk, pathPaymentID, raw)

	cb, err := model.ParseStkCallback(raw)
	if err != nil {
		metrics.IncCallback("malformed")
		logging.With(ctx, u.log).Warn().Err(err).Str("path_payment_id", pathPaymentID).Msg("ignoring malformed callback")
		return model.SuccessAck()
	}
	ids := cb.CorrelationIDs(pathPaymentID)
	ctx = logging.WithCheckoutRequestID(ctx, ids.CheckoutRequestID)

	o, err := model.OutcomeFrom(cb, raw, u.now())
	if err != nil {
		metrics.IncCallback("malformed")
		logging.With(ctx, u.log).Warn().Err(err).Msg("ignoring callback with unusable result code")
		return model.SuccessAck()
	}

	p, err := u.payments.FindByAnyCorrelationID(ctx, nil, ids)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		u.synthesize(ctx, ids, o)
	case err != nil:
		metrics.IncCallback("error")
		logging.With(ctx, u.log).Error().Err(err).Msg("callback lookup failed")
	default:
		u.apply(logging.WithPaymentID(ctx, p.ID), p, o)
	}
	return model.SuccessAck()
}

// apply moves a matched payment out of pending at most once. Anything
// arriving after the transition only touches the retry audit.
func (u *callbackUC) apply(ctx context.Context, p *model.Payment, o *model.CallbackOutcome) {
	log := logging.With(ctx, u.log)
	u.checkAmount(log, p, o)

	if p.Status == model.PaymentStatusPending {
		won, err := u.payments.UpdateStatusIfPending(ctx, nil, p.ID, o)
		if err != nil {
			metrics.IncCallback("error")
			log.Error().Err(err).Msg("conditional status update failed")
			return
		}
		if won {
			p.Apply(o)
			metrics.IncCallback("transitioned")
			u.finalized(ctx, log, p)
			return
		}
	}

	if err := u.payments.RecordRedelivery(ctx, nil, p.ID, o); err != nil {
		metrics.IncCallback("error")
		log.Error().Err(err).Msg("recording redelivery failed")
		return
	}
	metrics.IncCallback("redelivery")
	log.Info().Int("result_code", o.ResultCode).Msg("redelivered callback; status unchanged")
}

// synthesize records a callback that matches no payment so the money is not lost.
func (u *callbackUC) synthesize(ctx context.Context, ids model.CorrelationIDs, o *model.CallbackOutcome) {
	p := &model.Payment{
		ID:                uuid.NewString(),
		UserID:            model.UnknownUserID,
		PlanName:          model.CallbackPaymentPlanName,
		Type:              model.PaymentTypeCallback,
		MerchantRequestID: model.StrPtr(ids.MerchantRequestID),
		CheckoutRequestID: model.StrPtr(ids.CheckoutRequestID),
		Status:            model.PaymentStatusPending,
		CreatedAt:         o.At,
	}
	// The initiator puts the payment id in the callback URL before the push,
	// so a path id means that exact record failed to persist.
	if _, err := uuid.Parse(ids.PaymentID); err == nil {
		p.ID = ids.PaymentID
	}
	if amount, ok := o.Metadata.AmountInt(); ok && amount > 0 {
		p.Amount = amount
	}
	if o.Metadata != nil && o.Metadata.PhoneNumber != nil {
		if phone, err := model.NormalizePhone(*o.Metadata.PhoneNumber); err == nil {
			p.PhoneNumber = phone
		} else {
			p.PhoneNumber = *o.Metadata.PhoneNumber
		}
	}
	p.Apply(o)

	ctx = logging.WithPaymentID(ctx, p.ID)
	log := logging.With(ctx, u.log)
	if ids.Empty() {
		log.Warn().Msg("callback carries no correlation ids; redeliveries cannot be deduplicated")
	}

	err := u.payments.Save(ctx, nil, p)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// A concurrent delivery inserted it first; treat this one as a redelivery.
		existing, ferr := u.payments.FindByAnyCorrelationID(ctx, nil, ids)
		if ferr != nil {
			metrics.IncCallback("error")
			log.Error().Err(ferr).Msg("re-resolving synthesized payment failed")
			return
		}
		u.apply(logging.WithPaymentID(ctx, existing.ID), existing, o)
		return
	}
	if err != nil {
		metrics.IncCallback("error")
		log.Error().Err(err).Msg("saving synthesized payment failed")
		return
	}

	metrics.IncCallback("synthesized")
	log.Warn().Int("result_code", o.ResultCode).Int64("amount", p.Amount).Msg("synthesized payment from unmatched callback")
	u.finalized(ctx, log, p)
}

// finalized runs once per payment, right after it became terminal.
func (u *callbackUC) finalized(ctx context.Context, log *zerolog.Logger, p *model.Payment) {
	metrics.IncPayment(string(p.Status))
	log.Info().Str("status", string(p.Status)).Int("result_code", derefInt(p.ResultCode)).Msg("payment reconciled")
	if p.Status != model.PaymentStatusCompleted {
		return
	}
	metrics.AddPaymentRevenue(revenueCurrency, p.Amount)
	if u.notifier == nil {
		return
	}
	if err := u.notifier.BroadcastPaymentUpdate(ctx, p.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("payment update notification failed")
	}
}

// checkAmount flags a provider-reported amount that differs from what was
// requested. The stored amount is kept.
func (u *callbackUC) checkAmount(log *zerolog.Logger, p *model.Payment, o *model.CallbackOutcome) {
	reported, ok := o.Metadata.AmountInt()
	if !ok || reported == p.Amount {
		return
	}
	metrics.IncAmountMismatch()
	log.Warn().Int64("stored_amount", p.Amount).Int64("reported_amount", reported).Msg("callback amount differs from requested amount")
}

func (u *callbackUC) Record(ctx context.Context, kind model.CallbackKind, raw []byte) *model.CallbackAck {
	u.appendLog(ctx, kind, "", raw)
	metrics.IncCallback(string(kind))
	return model.AcceptedAck()
}

func (u *callbackUC) RecentLogs(ctx context.Context, limit int) ([]*model.CallbackLog, error) {
	return u.logs.ListRecent(ctx, nil, clampLimit(limit))
}

func (u *callbackUC) appendLog(ctx context.Context, kind model.CallbackKind, paymentID string, raw []byte) {
	if u.logs == nil {
		return
	}
	l := &model.CallbackLog{
		ID:         uuid.NewString(),
		Kind:       kind,
		PaymentID:  paymentID,
		Payload:    auditPayload(raw),
		ReceivedAt: u.now(),
	}
	if err := u.logs.Append(ctx, nil, l); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("appending callback log failed")
	}
}

// auditPayload keeps valid JSON verbatim and quotes anything else.
func auditPayload(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return json.RawMessage(append([]byte(nil), raw...))
	}
	b, _ := json.Marshal(string(raw))
	return b
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
