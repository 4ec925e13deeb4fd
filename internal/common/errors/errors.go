// Package errors provides standardized error handling for the notification service.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeEmailSendFailed  ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeSMSSendFailed    ErrorCode = "SMS_SEND_FAILED"
	ErrCodeSMSNotConfigured ErrorCode = "SMS_NOT_CONFIGURED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeSenderNotFound    ErrorCode = "SENDER_NOT_FOUND"
	ErrCodeAuditIndexFailed  ErrorCode = "AUDIT_INDEX_FAILED"
	ErrCodeRegistryInvalid   ErrorCode = "REGISTRY_INVALID"
	ErrCodeDispatchIncomplete ErrorCode = "DISPATCH_INCOMPLETE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewEmailSendFailedError creates a retryable email delivery error.
func NewEmailSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailSendFailed,
		Message:   "Failed to send email via SES",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSMSSendFailedError creates a retryable SMS delivery error.
func NewSMSSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSMSSendFailed,
		Message:   "Failed to publish SMS via SNS",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSMSNotConfiguredError creates a non-retryable configuration error.
func NewSMSNotConfiguredError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSMSNotConfigured,
		Message:   "SMS client is not configured",
		Details:   "no SNS client was provided at startup; set notifications.sms.enabled and AWS credentials",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable database error.
func NewQueryExecutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database write error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSenderNotFoundError signals that no admin account exists to act as the
// system sender for a sweep run.
func NewSenderNotFoundError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSenderNotFound,
		Message:   "No admin user available as system sender",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRegistryInvalidError creates a non-retryable sweep registry error.
func NewRegistryInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRegistryInvalid,
		Message:   "Sweep registry failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return false
}

// CodeOf extracts the error code, or empty when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Code
	}
	return ""
}
