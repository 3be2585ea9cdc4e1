package dto

import (
	"context"
	"errors"
	"net/http"
	"time"

	"prescription-analytics-api/internal/models"
)

const apiVersion = "1.0"

// APIResponse represents the standard API response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError represents an API error
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Meta represents response metadata
type Meta struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
	Version        string    `json:"version,omitempty"`
	DatasetVersion uint64    `json:"dataset_version,omitempty"`
	DatasetMode    string    `json:"dataset_mode,omitempty"`
	Cached         bool      `json:"cached"`
	DurationMS     int64     `json:"duration_ms"`
}

// HealthResponse represents the health endpoint payload
type HealthResponse struct {
	Status         string            `json:"status"`
	Service        string            `json:"service"`
	Timestamp      time.Time         `json:"timestamp"`
	DatasetVersion uint64            `json:"dataset_version"`
	Checks         map[string]string `json:"checks,omitempty"`
}

// NewSuccessResponse creates a successful API response
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Timestamp: time.Now(),
			Version:   apiVersion,
		},
	}
}

// NewErrorResponse creates an error API response
func NewErrorResponse(code, message string, details interface{}) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: &Meta{
			Timestamp: time.Now(),
			Version:   apiVersion,
		},
	}
}

// NewValidationErrorResponse creates a validation error response
func NewValidationErrorResponse(message string) *APIResponse {
	return NewErrorResponse("VALIDATION_ERROR", message, nil)
}

// NewNotFoundResponse creates a not found error response
func NewNotFoundResponse(resource string) *APIResponse {
	return NewErrorResponse("NOT_FOUND", resource+" not found", nil)
}

// NewRateLimitResponse creates a rate limit error response
func NewRateLimitResponse() *APIResponse {
	return NewErrorResponse("RATE_LIMIT_EXCEEDED", "Rate limit exceeded", "Please try again later")
}

// WithRequestID adds request ID to the response
func (r *APIResponse) WithRequestID(requestID string) *APIResponse {
	r.meta().RequestID = requestID
	return r
}

// WithResult records where the data came from and how long it took
func (r *APIResponse) WithResult(datasetVersion uint64, datasetMode string, cached bool, elapsed time.Duration) *APIResponse {
	m := r.meta()
	m.DatasetVersion = datasetVersion
	m.DatasetMode = datasetMode
	m.Cached = cached
	m.DurationMS = elapsed.Milliseconds()
	return r
}

func (r *APIResponse) meta() *Meta {
	if r.Meta == nil {
		r.Meta = &Meta{
			Timestamp: time.Now(),
			Version:   apiVersion,
		}
	}
	return r.Meta
}

// ErrorResponseFor maps a domain error to an HTTP status and error body
func ErrorResponseFor(err error) (int, *APIResponse) {
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest, NewErrorResponse("VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, models.ErrUnknownGroup):
		return http.StatusNotFound, NewErrorResponse("NOT_FOUND", err.Error(), nil)
	case errors.Is(err, models.ErrEmptyDataset):
		return http.StatusUnprocessableEntity, NewErrorResponse("EMPTY_SELECTION", err.Error(), nil)
	case errors.Is(err, models.ErrInsufficientData):
		return http.StatusUnprocessableEntity, NewErrorResponse("INSUFFICIENT_DATA", err.Error(), nil)
	case errors.Is(err, models.ErrModelFit):
		return http.StatusUnprocessableEntity, NewErrorResponse("MODEL_FIT_FAILED", err.Error(), nil)
	case errors.Is(err, models.ErrDegenerateInput):
		return http.StatusUnprocessableEntity, NewErrorResponse("DEGENERATE_INPUT", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, NewErrorResponse("TIMEOUT", "Analysis did not finish in time", nil)
	default:
		return http.StatusInternalServerError, NewErrorResponse("INTERNAL_ERROR", "Internal server error", err.Error())
	}
}
