package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// summaryRequest builds a reporting request from the owner and the tz, from
// and to query parameters.
func (s *Server) summaryRequest(r *http.Request) (services.SummaryRequest, error) {
	loc, err := parseLocation(r, s.location)
	if err != nil {
		return services.SummaryRequest{}, err
	}
	w, err := parseWindow(r, loc)
	if err != nil {
		return services.SummaryRequest{}, err
	}
	return services.SummaryRequest{OwnerID: ownerFrom(r), Window: w, Location: loc}, nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	req, err := s.summaryRequest(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	sum, err := s.reports.GetSummary(r.Context(), req)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	req, err := s.summaryRequest(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	totals, err := s.reports.GetTotals(r.Context(), req)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	req, err := s.summaryRequest(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	b, err := s.reports.GetCategoryBreakdown(r.Context(), req)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	req, err := s.summaryRequest(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	trend, err := s.reports.GetTrend(r.Context(), req)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	req, err := s.summaryRequest(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	report, err := s.reports.GetBudgetReport(r.Context(), req)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCategoryBudget reports one category's budget status. With a spent
// query parameter the caller supplies the period sum; otherwise it is
// computed from the ledger over the window (default: current month).
func (s *Server) handleCategoryBudget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if spentText := r.URL.Query().Get("spent"); spentText != "" {
		spent, err := core.ParseMoney(spentText)
		if err != nil || spent.IsNegative() {
			writeError(w, r, core.Invalid("spent", core.ErrInvalidAmount), log.OpRead)
			return
		}
		st, err := s.categories.BudgetStatus(r.Context(), ownerFrom(r), id, spent)
		if err != nil {
			writeError(w, r, err, log.OpRead)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}

	req, err := s.summaryRequest(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	st, err := s.reports.CategoryBudget(r.Context(), req, id)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
