package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string `json:"error"`
	Type       string `json:"type,omitempty"`
	Field      string `json:"field,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
	Dependents int    `json:"dependents,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps the ledger error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Server-side failures are logged and their text is
// not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Type: services.ClassifyError(err)}

	var (
		re *requestError
		ve *core.ValidationError
		ce *core.ConflictError
	)
	switch {
	case errors.As(err, &re):
		body.Field = re.field
		body.Type = log.ErrorTypeValidation
	case errors.As(err, &ve):
		body.Field = ve.Field
	case errors.As(err, &ce):
		body.Error = "category in use"
		body.CategoryID = ce.CategoryID
		body.Dependents = ce.Dependents
	}

	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, services.ClassifyError, op, log.NewFields().WithOwner(ownerFrom(r)))
		if status == http.StatusServiceUnavailable {
			body.Error = "ledger store unavailable"
		} else {
			body.Error = "internal server error"
		}
	}

	writeJSON(w, status, body)
}
