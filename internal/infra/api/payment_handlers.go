package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/infra/logging"
	"hotspot-billing/internal/usecase"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeStrict(r, s.opt.MaxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
		return
	}

	s.initiate(w, r, req.toUseCase())
}

// handleStkPush serves the bare push form {phone, amount, accountNumber}.
// It is a direct payment with no plan.
func (s *Server) handleStkPush(w http.ResponseWriter, r *http.Request) {
	var req stkPushRequest
	if err := decodeStrict(r, s.opt.MaxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
		return
	}
	s.initiate(w, r, req.toUseCase())
}

func (s *Server) initiate(w http.ResponseWriter, r *http.Request, req usecase.InitiateRequest) {
	res, err := s.payments.Initiate(r.Context(), req)
	if err != nil {
		s.writeInitiateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "STK push sent",
		Data: initiateResponse{
			PaymentID:         res.PaymentID,
			CheckoutRequestID: res.CheckoutRequestID,
			MerchantRequestID: res.MerchantRequestID,
			CustomerMessage:   res.CustomerMessage,
		},
	})
}

func (s *Server) writeInitiateError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "validation failed", Errors: ve.Fields})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
	case errors.Is(err, domain.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, envelope{Success: false, Message: "too many payment requests, try again shortly"})
	case usecase.IsProviderTimeout(err):
		writeJSON(w, http.StatusGatewayTimeout, envelope{Success: false, Message: "payment provider timed out"})
	case errors.Is(err, domain.ErrProviderRejected), errors.Is(err, domain.ErrProviderAuth), errors.Is(err, domain.ErrProviderUnavailable):
		writeJSON(w, http.StatusBadGateway, envelope{Success: false, Message: err.Error()})
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("initiate failed")
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "failed to initiate payment"})
	}
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.payments.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusNotFound, errorBody("Payment not found"))
		return
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("get payment failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, okBody(toPaymentDTO(p)))
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	ps, err := s.payments.ListRecent(r.Context(), queryInt(r, "limit"))
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("list payments failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, okBody(toPaymentDTOs(ps)))
}

// decodeStrict reads a single JSON object, rejecting unknown fields.
// Numbers decode as json.Number so amounts keep their exact text.
func decodeStrict(r *http.Request, max int64, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, max+1))
	if err != nil {
		return errors.New("could not read request body")
	}
	if int64(len(body)) > max {
		return errors.New("request body too large")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			return fmt.Errorf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		}
		return errors.New("invalid JSON body")
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// parseDate accepts RFC 3339 or a plain yyyy-mm-dd. Empty yields the zero time.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
