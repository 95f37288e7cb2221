package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"dispatchd/internal/assign"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeEngineError maps engine error types to problem responses.
// Infeasibility never reaches here; it comes back as unassigned orders.
func writeEngineError(w http.ResponseWriter, err error, instance string) {
	var ve *assign.ValidationError
	if errors.As(err, &ve) {
		writeProblem(w, http.StatusBadRequest, "Invalid request", ve.Error(), instance)
		return
	}
	var te *assign.SolverTimeoutError
	if errors.As(err, &te) {
		writeProblem(w, http.StatusServiceUnavailable, "Solver timeout", te.Error(), instance)
		return
	}
	var ce *assign.StateConflictError
	if errors.As(err, &ce) {
		writeProblem(w, http.StatusConflict, "State conflict", ce.Error(), instance)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Assignment failed", err.Error(), instance)
}
