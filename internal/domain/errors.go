package domain

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrNotFound is returned by durable-store lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// ErrCacheMiss is returned by cache lookups when the key or field is absent.
// The resilient cache client also returns it when the store is unreachable,
// so callers must never treat a miss as proof the value does not exist.
var ErrCacheMiss = errors.New("not found in cache")

// ErrorCode represents a specific error condition.
type ErrorCode string

const (
	ErrInvalidAPIKey     ErrorCode = "InvalidAPIKey"       // HTTP 401
	ErrInvalidCredential ErrorCode = "InvalidCredential"   // HTTP 401, uniform rejection for all credential failures
	ErrBadRequest        ErrorCode = "BadRequest"          // HTTP 400
	ErrInternal          ErrorCode = "InternalServerError" // HTTP 500
)

// ErrorResponse is the standard error format returned to clients as JSON.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}
