package api

import (
	"context"
	"io"
	"net/http"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/infra/logging"

	"github.com/go-chi/chi/v5"
)

// handleCallback always answers 200 with the success ack. Reconciliation runs
// on a context detached from the provider connection and bounded by CallbackTimeout.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	pathID := chi.URLParam(r, "paymentID")
	ctx := logging.WithPaymentID(r.Context(), pathID)
	defer s.ackOnPanic(w, r.WithContext(ctx), model.SuccessAck())

	raw, err := io.ReadAll(io.LimitReader(r.Body, s.opt.MaxBodyBytes))
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("callback body unreadable")
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opt.CallbackTimeout)
	defer cancel()
	ack := s.callbacks.Reconcile(rctx, pathID, raw)
	if ack == nil {
		ack = model.SuccessAck()
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleRecord(kind model.CallbackKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer s.ackOnPanic(w, r, model.AcceptedAck())
		raw, err := io.ReadAll(io.LimitReader(r.Body, s.opt.MaxBodyBytes))
		if err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Str("kind", string(kind)).Msg("delivery body unreadable")
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opt.CallbackTimeout)
		defer cancel()
		writeJSON(w, http.StatusOK, s.callbacks.Record(rctx, kind, raw))
	}
}

// ackOnPanic answers the provider with ack instead of a 500 when
// reconciliation panics, so it does not keep retrying the delivery.
func (s *Server) ackOnPanic(w http.ResponseWriter, r *http.Request, ack *model.CallbackAck) {
	if rec := recover(); rec != nil {
		logging.With(r.Context(), s.log).Error().Interface("panic", rec).Msg("panic while handling provider delivery; acknowledged")
		writeJSON(w, http.StatusOK, ack)
	}
}

func (s *Server) handleCallbackLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.callbacks.RecentLogs(r.Context(), queryInt(r, "limit"))
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("list callback logs failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	out := make([]callbackLogDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, callbackLogDTO{ID: l.ID, Kind: l.Kind, PaymentID: l.PaymentID, Payload: l.Payload, ReceivedAt: l.ReceivedAt})
	}
	writeJSON(w, http.StatusOK, okBody(out))
}

func (s *Server) handleDebugNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := decodeStrict(r, s.opt.MaxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res := normalizeResponse{Raw: req.Phone}
	n, err := model.NormalizePhone(req.Phone)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Normalized, res.OK = n, true
	}
	writeJSON(w, http.StatusOK, res)
}
