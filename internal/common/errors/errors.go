// Package errors provides custom error types for the Promptgate application.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Gateway-specific codes
	ErrCodeNoCredentials      = "NO_CREDENTIALS"
	ErrCodeProvisioningFailed = "PROVISIONING_ERROR"
	ErrCodeSpawnFailed        = "SPAWN_ERROR"
	ErrCodeExecutionTimeout   = "EXECUTION_TIMEOUT"
	ErrCodeExecutionFailed    = "EXECUTION_FAILED"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Unauthorized creates a new unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NoCredentials creates the error returned when neither subscription nor
// API-key credentials are available for an execution.
func NoCredentials() *AppError {
	return &AppError{
		Code:       ErrCodeNoCredentials,
		Message:    "no credentials configured: set subscription tokens or an API key",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Provisioning creates the error returned when the credential record cannot
// be written at boot.
func Provisioning(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeProvisioningFailed,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// SpawnFailed creates the error returned when the agent process never started.
func SpawnFailed(reason string) *AppError {
	return &AppError{
		Code:       ErrCodeSpawnFailed,
		Message:    fmt.Sprintf("failed to spawn agent process: %s", reason),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// ExecutionTimeout creates the error returned when the hard deadline killed
// the agent process.
func ExecutionTimeout(elapsedMs int64) *AppError {
	return &AppError{
		Code:       ErrCodeExecutionTimeout,
		Message:    fmt.Sprintf("agent execution exceeded hard deadline after %dms", elapsedMs),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// ExecutionFailed creates the error returned when the agent exited non-zero.
func ExecutionFailed(exitCode int, excerpt string) *AppError {
	return &AppError{
		Code:       ErrCodeExecutionFailed,
		Message:    fmt.Sprintf("agent exited with code %d: %s", exitCode, excerpt),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// ServiceUnavailable creates a new service unavailable error.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("service '%s' is currently unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	// Otherwise, wrap as an internal error
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsBadRequest checks if the error is a bad request error.
func IsBadRequest(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeBadRequest || appErr.Code == ErrCodeValidationError
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
