// Package apierr provides the core's structured error type, grounded on the
// ServiceError pattern used throughout the ambient stack: a stable machine
// code, a human message, an HTTP status, and optional structured details.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	// Input errors (§7) — reported per-span, never retried server-side.
	CodeInvalidField   Code = "INVALID_FIELD"
	CodeOutOfRange     Code = "OUT_OF_RANGE"
	CodeInvalidEnum    Code = "INVALID_ENUM"
	CodeQuotaExceeded  Code = "QUOTA_EXCEEDED"
	CodeBackpressure   Code = "BACKPRESSURE"

	// Resource / transition errors.
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// Service errors.
	CodeInternal Code = "INTERNAL"
	CodeTimeout  Code = "TIMEOUT"
)

// ServiceError is the one error type every API boundary in the core returns.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped error so errors.Is/As keep working.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a structured detail and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds a bare ServiceError.
func New(code Code, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap builds a ServiceError around an underlying cause.
func Wrap(code Code, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Per-kind constructors, one per §7 input-error and resource-error case.

func InvalidField(field string) *ServiceError {
	return New(CodeInvalidField, "missing or invalid required field", http.StatusBadRequest).
		WithDetails("field", field)
}

func OutOfRange(field string, value interface{}) *ServiceError {
	return New(CodeOutOfRange, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("value", value)
}

func InvalidEnum(field string, value interface{}) *ServiceError {
	return New(CodeInvalidEnum, "value not in allowed set", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("value", value)
}

func QuotaExceeded(customerID string, quota int) *ServiceError {
	return New(CodeQuotaExceeded, "daily trace quota exceeded", http.StatusTooManyRequests).
		WithDetails("customer_id", customerID).
		WithDetails("quota", quota)
}

func Backpressure() *ServiceError {
	return New(CodeBackpressure, "queue at capacity, retry with backoff", http.StatusServiceUnavailable)
}

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

func InvalidTransition(from, to string) *ServiceError {
	return New(CodeInvalidTransition, "invalid alert status transition", http.StatusConflict).
		WithDetails("from", from).
		WithDetails("to", to)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

func Timeout(operation string) *ServiceError {
	return New(CodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// As extracts a *ServiceError from an error chain, if present.
func As(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the HTTP status to use for err, defaulting to 500.
func HTTPStatus(err error) int {
	if se := As(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
