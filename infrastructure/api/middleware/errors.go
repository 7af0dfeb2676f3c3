package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/infrastructure/api/jsonapi"
)

// APIError is an error with an explicit HTTP status.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates an APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// BadRequest wraps a malformed request.
func BadRequest(message string, cause error) *APIError {
	return NewAPIError(http.StatusBadRequest, message, cause)
}

// Code returns the HTTP status code.
func (e *APIError) Code() int { return e.code }

// Message returns the client-facing message.
func (e *APIError) Message() string { return e.message }

// Error implements error.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the cause.
func (e *APIError) Unwrap() error { return e.cause }

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	var apiErr *APIError
	var numErr *strconv.NumError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code()
	case errors.Is(err, domain.ErrValidation), errors.As(err, &numErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrGenerationInProgress),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmbeddingMismatch):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// WriteError writes err as a JSON:API error document. Server errors are
// logged and their detail is withheld from the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status := StatusFor(err)
	detail := err.Error()
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.Message()
		if apiErr.cause != nil {
			detail = fmt.Sprintf("%s: %v", apiErr.Message(), apiErr.cause)
		}
	}
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
		}
		if status == http.StatusInternalServerError {
			detail = "internal server error"
		}
	}
	WriteJSON(w, status, jsonapi.NewErrorResponse(
		jsonapi.NewError(strconv.Itoa(status), http.StatusText(status), detail),
	))
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return BadRequest("invalid request body", err)
	}
	return nil
}
