// Package errors provides standardized error handling for the delivery pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Precondition failures; never enter the pipeline.
	ErrCodeCampaignValidationFailed ErrorCode = "CAMPAIGN_VALIDATION_FAILED"
	ErrCodeImportFailed             ErrorCode = "IMPORT_FAILED"
	ErrCodeInvalidStateTransition   ErrorCode = "INVALID_STATE_TRANSITION"

	// Channel send failures.
	ErrCodeChannelSendFailed ErrorCode = "CHANNEL_SEND_FAILED" // transient, retryable
	ErrCodeRecipientRejected ErrorCode = "RECIPIENT_REJECTED"  // permanent
	ErrCodeUnknownChannel    ErrorCode = "UNKNOWN_CHANNEL"

	// Storage and lookup failures.
	ErrCodeStorageFailed    ErrorCode = "STORAGE_FAILED"
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeCampaignNotFound ErrorCode = "CAMPAIGN_NOT_FOUND"
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

// NewValidationError creates a non-retryable precondition error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCampaignValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewImportError creates a non-retryable recipient import error.
func NewImportError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeImportFailed,
		Message:   "Recipient import failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable lifecycle error.
func NewInvalidTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidStateTransition,
		Message:   "Invalid status transition",
		Details:   fmt.Sprintf("%s -> %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransientSendError creates a retryable channel send error.
func NewTransientSendError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelSendFailed,
		Message:   "Channel send failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermanentSendError creates a non-retryable channel send error
// (invalid or unreachable recipient).
func NewPermanentSendError(channel, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientRejected,
		Message:   "Recipient rejected by channel",
		Details:   fmt.Sprintf("channel: %s, %s", channel, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownChannelError creates a non-retryable channel resolution error.
func NewUnknownChannelError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownChannel,
		Message:   "No sender registered for channel",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageError creates a retryable persistence error.
func NewStorageError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailed,
		Message:   "Storage operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCampaignNotFoundError creates a non-retryable lookup error.
func NewCampaignNotFoundError(campaignID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCampaignNotFound,
		Message:   "Campaign not found",
		Details:   fmt.Sprintf("campaignId: %s", campaignID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Helpers
// ==========================

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether an error should re-enter the retry cycle.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// Code extracts the error code, or INTERNAL_ERROR for foreign errors.
func Code(err error) ErrorCode {
	return Normalize(err).Code
}
