package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/torosent/kvscope/internal/bench"
	"github.com/torosent/kvscope/internal/store"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error  string   `json:"error"`
	Status int      `json:"status"`
	Issues []string `json:"issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Status: status})
}

// writeFailure maps err to a status code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Status: statusFor(err)}
	var ce *bench.ConfigError
	if errors.As(err, &ce) {
		body.Issues = ce.Issues()
	}
	writeJSON(w, body.Status, body)
}

func statusFor(err error) int {
	var se *store.Error
	switch {
	case errors.Is(err, bench.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, bench.ErrAlreadyRunning), errors.Is(err, bench.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &se), errors.Is(err, store.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
