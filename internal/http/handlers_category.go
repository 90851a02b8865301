package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.List(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.categories.Get(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	c, err := s.categories.Create(r.Context(), ownerFrom(r), req.Name, req.Budget)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req updateCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	c, err := s.categories.Update(r.Context(), ownerFrom(r), r.PathValue("id"),
		core.CategoryPatch{Name: req.Name, Budget: req.Budget})
	if err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteCategory requires ?policy=block|cascade; there is no default.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	policy, err := core.ParseDeletePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	res, err := s.categories.Delete(r.Context(), ownerFrom(r), r.PathValue("id"), policy)
	if err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
