package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrAuthExpired is terminal for the session: the refresh call itself was
// rejected, or no refresh token existed. The caller must treat the session
// as logged out.
var ErrAuthExpired = errors.New("session expired")

// ErrNoPermission is returned by Login when the account carries none of the
// roles allowed to use the app.
var ErrNoPermission = errors.New("account has no permitted role")

// APIError is a server-reported failure: the backend responded with a
// non-2xx status and (usually) a JSON error body.
type APIError struct {
	Status  int
	Message string
	// Errors holds server-reported field errors, surfaced verbatim.
	Errors []string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	if len(e.Errors) > 0 {
		return fmt.Sprintf("api error %d: %s", e.Status, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// IsValidation reports whether the error carries server-side field errors.
func (e *APIError) IsValidation() bool {
	return e.Status == 422 || len(e.Errors) > 0
}

// isAuthStatus reports whether a status code means the bearer token was
// rejected.
func isAuthStatus(code int) bool {
	return code == 401 || code == 403
}

// apiError builds an *APIError from a response body, tolerating both
// {"message":"..."} and {"errors":["..."]} shapes as well as non-JSON bodies.
func apiError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	if len(body) == 0 {
		return e
	}
	var parsed struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Message = parsed.Message
		e.Errors = parsed.Errors
	}
	return e
}
