/*-------------------------------------------------------------------------
 *
 * errors.go
 *    API error types and response helpers
 *
 * IDENTIFICATION
 *    internal/api/errors.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"net/http"
)

/* APIError carries an HTTP status with a machine-readable message */
type APIError struct {
	Code      int
	Message   string
	Err       error
	RequestID string
	Reasons   []string
}

func (e *APIError) Error() string {
	return e.Message
}

/* NewError creates an APIError */
func NewError(code int, message string, err error) *APIError {
	return &APIError{Code: code, Message: message, Err: err}
}

/* WrapError attaches the correlation id to an APIError */
func WrapError(apiErr *APIError, requestID string) *APIError {
	wrapped := *apiErr
	wrapped.RequestID = requestID
	return &wrapped
}

var (
	ErrUnauthorized = NewError(http.StatusUnauthorized, "unauthorized", nil)
	ErrNotFound     = NewError(http.StatusNotFound, "not found", nil)
)

/* ErrorResponse is the JSON error body */
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    int      `json:"code"`
	Reasons []string `json:"reasons,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, err *APIError) {
	response := ErrorResponse{
		Error:   err.Message,
		Code:    err.Code,
		Reasons: err.Reasons,
	}
	if err.RequestID != "" {
		w.Header().Set("X-Request-ID", err.RequestID)
	}
	respondJSON(w, err.Code, response)
}
