package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req createIncomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	loc, err := parseLocation(r, s.location)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	date, err := parseDay(req.Date, loc)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}

	in, err := s.entries.RecordIncome(r.Context(), core.IncomeEntry{
		OwnerID:     ownerFrom(r),
		Amount:      req.Amount,
		Date:        date,
		Source:      sanitizeInput(req.Source),
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	loc, err := parseLocation(r, s.location)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	date, err := parseDay(req.Date, loc)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}

	ex, err := s.entries.RecordExpense(r.Context(), core.ExpenseEntry{
		OwnerID:     ownerFrom(r),
		Amount:      req.Amount,
		Date:        date,
		CategoryID:  req.CategoryID,
		Kind:        core.ExpenseKind(req.Kind),
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.entries.DeleteEntry(r.Context(), ownerFrom(r), r.PathValue("id")); err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
