// internal/common/errors/errors.go
// Package errors provides standardized error handling for the notification
// dispatch pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeResourceNotFound  ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeDuplicateResource ErrorCode = "DUPLICATE_RESOURCE"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"

	ErrCodeDatabaseQueryFailed  ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeDatabaseUpdateFailed ErrorCode = "DATABASE_UPDATE_FAILED"

	ErrCodeProviderSendFailed ErrorCode = "PROVIDER_SEND_FAILED"
	ErrCodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"

	ErrCodeMasterInactive ErrorCode = "NOTIFICATION_MASTER_INACTIVE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// Constructors
// ==========================

// NewNotFoundError creates a non-retryable missing-resource error.
func NewNotFoundError(resource string, id int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %d", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError creates a non-retryable uniqueness-violation error.
func NewConflictError(resource, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateResource,
		Message:   fmt.Sprintf("%s already exists", resource),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable payload validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request payload validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryFailedError creates a retryable read-path persistence error.
func NewQueryFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInsertFailedError creates a retryable write-path persistence error.
func NewInsertFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpdateFailedError creates a retryable write-path persistence error.
func NewUpdateFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseUpdateFailed,
		Message:   "Database update failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderError creates a retryable external delivery error.
func NewProviderError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderSendFailed,
		Message:   fmt.Sprintf("Provider '%s' delivery failed", provider),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a retryable delivery timeout error.
func NewProviderTimeoutError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   fmt.Sprintf("Provider '%s' call timed out", provider),
		Details:   "delivery attempt exceeded its deadline",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMasterInactiveError creates a non-retryable template-gating error.
func NewMasterInactiveError(masterID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeMasterInactive,
		Message:   "Notification master inactive",
		Details:   fmt.Sprintf("masterId: %d", masterID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Utility Functions
// ==========================

// CodeOf extracts the error code from any error, normalizing unknown errors
// to INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// IsNotFound reports whether err is a missing-resource error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeResourceNotFound
}

// IsConflict reports whether err is a uniqueness-violation error.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeDuplicateResource
}

// IsValidation reports whether err is a payload validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidationFailed
}

// IsRetryable reports whether a worker may re-attempt the operation.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}
