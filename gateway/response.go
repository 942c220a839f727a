// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"crypto/rand"
	"encoding/json"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"time"
)

// ErrorCode is a canonical error kind understood by every client of the
// gateway. Each code carries a default HTTP status.
type ErrorCode string

const (
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeResourceNotFound  ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeDuplicateResource ErrorCode = "DUPLICATE_RESOURCE"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeBudgetExceeded    ErrorCode = "BUDGET_EXCEEDED"
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus returns the default HTTP status for the code. Unknown codes
// map to 500 so a miscoded path never leaks a 200.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidation, ErrCodeBudgetExceeded:
		return http.StatusBadRequest
	case ErrCodeResourceNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateResource:
		return http.StatusConflict
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeDatabaseError, ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// APIError is a structured domain error. Handlers and services may return
// it directly; the recovery handler re-emits it unchanged instead of
// masking it as INTERNAL_ERROR.
type APIError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (e *APIError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewAPIError creates a structured domain error
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// WithDetails attaches a details payload and returns the error for chaining
func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// FieldError describes a single request-schema validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorBody is the error half of the response envelope
type errorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
	RequestID string                 `json:"request_id"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// writeSuccess writes {"success":true,"data":...} with the given status
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data}); err != nil {
		log.Printf("[Gateway] ⚠️ Failed to encode response: %v", err)
	}
}

// writeError writes the uniform error envelope using the code's default
// HTTP status. Headers that vary per failure (Retry-After, rate limit
// counters) must be set by the caller before this is invoked.
func writeError(w http.ResponseWriter, requestID string, code ErrorCode, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	envelope := errorEnvelope{
		Success: false,
		Error: errorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			RequestID: requestID,
		},
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		log.Printf("[Gateway] ⚠️ Failed to encode error response: %v", err)
	}
}

// writeAPIError emits a structured domain error unchanged
func writeAPIError(w http.ResponseWriter, requestID string, apiErr *APIError) {
	writeError(w, requestID, apiErr.Code, apiErr.Message, apiErr.Details)
}

// writeValidationError flattens field-level failures under details.errors
func writeValidationError(w http.ResponseWriter, requestID string, errs []FieldError) {
	writeError(w, requestID, ErrCodeValidation, "Request validation failed", map[string]interface{}{
		"errors": errs,
	})
}

// writeDatabaseError preserves the underlying cause for operator diagnosis
// without leaking stack traces to the caller.
func writeDatabaseError(w http.ResponseWriter, requestID string, err error) {
	details := map[string]interface{}{}
	if err != nil {
		details["cause"] = err.Error()
	}
	writeError(w, requestID, ErrCodeDatabaseError, "A database error occurred", details)
}

const requestIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newRequestID generates a correlation id of the form req_<unixms>_<rand>.
// The id is attached to the response headers, the body envelope, every log
// line, and the audit record for the request.
func newRequestID() string {
	return "req_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + randomString(8)
}

// randomString returns n characters from a lowercase alphanumeric set
func randomString(n int) string {
	max := big.NewInt(int64(len(requestIDAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failure is unrecoverable for id generation;
			// fall back to a time-derived character.
			b[i] = requestIDAlphabet[time.Now().UnixNano()%int64(len(requestIDAlphabet))]
			continue
		}
		b[i] = requestIDAlphabet[idx.Int64()]
	}
	return string(b)
}
