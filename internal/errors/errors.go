// Package errors defines the service error taxonomy and its HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeInvalidToken  Code = "INVALID_TOKEN"
	CodeValidation    Code = "VALIDATION"
	CodeNotFound      Code = "NOT_FOUND"
	CodeChainRead     Code = "CHAIN_READ"
	CodeQuote         Code = "QUOTE"
	CodeSwapExecution Code = "SWAP_EXECUTION"
	CodeTimeout       Code = "TIMEOUT"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL"
)

// ServiceError is a typed error carrying an HTTP status and optional details.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.cause)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value detail and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// Unauthorized indicates a missing or malformed bearer token.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken indicates a bearer token that failed verification.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid access token", cause)
}

// Validation indicates a malformed request body, amount or address.
func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

// NotFound indicates a missing wallet or liquidity pool.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// ChainRead indicates a failed on-chain state read.
func ChainRead(message string, cause error) *ServiceError {
	return newError(CodeChainRead, http.StatusInternalServerError, message, cause)
}

// QuoteFailed indicates a reverted quote simulation.
func QuoteFailed(message string, cause error) *ServiceError {
	return newError(CodeQuote, http.StatusInternalServerError, message, cause)
}

// SwapExecution indicates a failed approval or swap submission. The failing
// step is attached as a detail.
func SwapExecution(step, message string, cause error) *ServiceError {
	err := newError(CodeSwapExecution, http.StatusInternalServerError, message, cause)
	if step != "" {
		err.WithDetails("step", step)
	}
	return err
}

// Timeout indicates a bounded wait that expired, e.g. a receipt poll.
func Timeout(message string, cause error) *ServiceError {
	return newError(CodeTimeout, http.StatusGatewayTimeout, message, cause)
}

// RateLimitExceeded indicates the caller exhausted its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	err := newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil)
	err.WithDetails("limit", limit)
	err.WithDetails("window", window)
	return err
}

// Internal indicates an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// HTTPStatus reports the status an error maps to, defaulting to 500.
func HTTPStatus(err error) int {
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
