package api

import (
	"errors"
	"net/http"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/infra/logging"
)

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("startDate"), false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("startDate: "+err.Error()))
		return
	}
	to, err := parseDate(q.Get("endDate"), true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("endDate: "+err.Error()))
		return
	}

	rep, err := s.reports.Revenue(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		logging.With(r.Context(), s.log).Error().Err(err).Msg("revenue report failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, revenueDTO{
		TotalRevenue:      rep.TotalRevenue,
		TransactionsCount: rep.TransactionsCount,
		RevenueByPlan:     rep.RevenueByPlan,
		StartDate:         rep.StartDate,
		EndDate:           rep.EndDate,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.reports.Dashboard(r.Context())
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("dashboard failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}
