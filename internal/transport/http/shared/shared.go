// Package shared holds response helpers used by every HTTP handler so the
// error envelope and JSON encoding stay uniform across routes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "medisure/pkg/domain-errors"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status. Encoding failures after the
// header is written cannot be recovered; they are dropped.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error into the HTTP envelope. Unknown
// errors map to 500 without leaking internals.
func WriteError(w http.ResponseWriter, err error) {
	var dErr *dErrors.DomainError
	if errors.As(err, &dErr) {
		WriteJSON(w, dErrors.ToHTTPStatus(dErr.Code), ErrorResponse{
			Error:   string(dErr.Code),
			Message: dErr.Message,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: string(dErrors.CodeInternal),
	})
}
