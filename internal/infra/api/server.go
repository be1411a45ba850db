package api

import (
	"context"
	"net/http"
	"time"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/infra/metrics"
	"hotspot-billing/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultMaxBody = 1 << 20

type Options struct {
	Dev             bool          // exposes /api/mpesa/debug/normalize
	RequestTimeout  time.Duration // application routes
	CallbackTimeout time.Duration // one reconciliation
	MaxBodyBytes    int64
}

// Server holds the HTTP handlers. Health may be nil.
type Server struct {
	payments  usecase.PaymentUseCase
	callbacks usecase.CallbackUseCase
	reports   usecase.ReportUseCase
	auth      *AuthManager
	health    func(ctx context.Context) error
	opt       Options
	log       *zerolog.Logger
}

func NewServer(
	payments usecase.PaymentUseCase,
	callbacks usecase.CallbackUseCase,
	reports usecase.ReportUseCase,
	auth *AuthManager,
	health func(ctx context.Context) error,
	opt Options,
	logger *zerolog.Logger,
) *Server {
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = 30 * time.Second
	}
	if opt.CallbackTimeout <= 0 {
		opt.CallbackTimeout = 5 * time.Second
	}
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = defaultMaxBody
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		payments:  payments,
		callbacks: callbacks,
		reports:   reports,
		auth:      auth,
		health:    health,
		opt:       opt,
		log:       &l,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/payment", func(r chi.Router) {
		r.Use(Timeout(s.opt.RequestTimeout))
		r.Post("/initiate", s.handleInitiate)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			r.Get("/", s.handleListPayments)
			r.Get("/report/revenue", s.handleRevenue)
			r.Get("/dashboard-data", s.handleDashboard)
		})
		r.Get("/{id}", s.handleGetPayment)
	})

	r.Route("/api/mpesa", func(r chi.Router) {
		r.With(Timeout(s.opt.RequestTimeout)).Post("/stkpush", s.handleStkPush)
		r.Post("/callback", s.handleCallback)
		r.Post("/callback/{paymentID}", s.handleCallback)
		r.Post("/confirmation", s.handleRecord(model.CallbackKindConfirmation))
		r.Post("/validation", s.handleRecord(model.CallbackKindValidation))
		r.With(Timeout(s.opt.RequestTimeout), s.auth.RequireAdmin).Get("/logs", s.handleCallbackLogs)
		if s.opt.Dev {
			r.Post("/debug/normalize", s.handleDebugNormalize)
		}
	})
	return r
}

// NewHTTPServer wraps h with the listener timeouts used in production.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
