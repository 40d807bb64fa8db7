// Package api implements the JSON services exposed on the daemon's control
// socket. Each service registers its routes on the shared chi router; the
// CLI is the only intended client.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/minhbui/trovia/internal/rest"
)

type errorResponse struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeRestError maps pipeline errors onto control-socket status codes.
func writeRestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rest.ErrAuthExpired):
		writeError(w, http.StatusUnauthorized, "session expired, log in again")
	case errors.Is(err, rest.ErrNoPermission):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		var apiErr *rest.APIError
		if errors.As(err, &apiErr) {
			if apiErr.IsValidation() {
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: apiErr.Message, Errors: apiErr.Errors})
				return
			}
			writeError(w, http.StatusBadGateway, apiErr.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
