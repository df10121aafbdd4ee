package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/posefactory/renderq/internal/common"
)

// ErrorResponse is the wire shape of every error the API returns:
// a one-line message plus a stable code. Internal details never reach
// the client.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "validation")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message, code string) error {
	return WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteServiceError maps a dispatcher error to the HTTP surface.
// Validation and transport errors surface verbatim; anything internal
// collapses to a generic message.
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, common.ErrValidation):
		return WriteError(w, http.StatusBadRequest, err.Error(), "validation")
	case errors.Is(err, common.ErrNotFound):
		return WriteError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, common.ErrTimeout):
		return WriteError(w, http.StatusGatewayTimeout, err.Error(), "timeout")
	case errors.Is(err, common.ErrTransport):
		return WriteError(w, http.StatusBadGateway, err.Error(), "transport")
	default:
		return WriteError(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
