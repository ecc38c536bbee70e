package errors

import (
	"fmt"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
	CategoryStorage  ErrorCategory = "storage"
)

// Common error codes
const (
	// Client errors - rejected before any network call
	CodeValidationError = "VALIDATION_ERROR"
	CodeEmptyURL        = "EMPTY_URL"
	CodeUnsupportedHost = "UNSUPPORTED_HOST"
	CodeJobConflict     = "JOB_CONFLICT"
	CodeNoActiveJob     = "NO_ACTIVE_JOB"

	// Channel / backend errors
	CodeConnectionError = "CONNECTION_ERROR"
	CodeChannelClosed   = "CHANNEL_CLOSED"
	CodeServerReported  = "SERVER_REPORTED"
	CodeMalformedEvent  = "MALFORMED_EVENT"
	CodeJobLost         = "JOB_LOST"
	CodeBackendError    = "BACKEND_ERROR"

	// Delivery errors
	CodeDeliveryError = "DELIVERY_ERROR"
	CodeEmptyArtifact = "EMPTY_ARTIFACT"

	// Local storage errors
	CodeStorageCorruption = "STORAGE_CORRUPTION"
	CodeStorageError      = "STORAGE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Category ErrorCategory  `json:"-"`
	Details  map[string]any `json:"details,omitempty"`
	Cause    error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// Client error constructors

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message, CategoryClient)
}

func EmptyURL() *AppError {
	return New(CodeEmptyURL, "no URL provided", CategoryClient)
}

func UnsupportedHost(host string) *AppError {
	return New(CodeUnsupportedHost, fmt.Sprintf("unsupported platform: %s", host), CategoryClient)
}

func JobConflict(jobID string) *AppError {
	return New(CodeJobConflict, fmt.Sprintf("a download is already active (job %s)", jobID), CategoryClient)
}

func NoActiveJob() *AppError {
	return New(CodeNoActiveJob, "no active download", CategoryClient)
}

// Channel / backend error constructors

func ConnectionError(message string) *AppError {
	return New(CodeConnectionError, message, CategoryExternal)
}

func ChannelClosed(message string) *AppError {
	return New(CodeChannelClosed, message, CategoryExternal)
}

func ServerReported(message string) *AppError {
	return New(CodeServerReported, message, CategoryServer)
}

func MalformedEvent(message string) *AppError {
	return New(CodeMalformedEvent, message, CategoryServer)
}

func JobLost(jobID string) *AppError {
	return New(CodeJobLost, fmt.Sprintf("job %s is no longer tracked by the server", jobID), CategoryServer)
}

func BackendError(message string) *AppError {
	return New(CodeBackendError, message, CategoryExternal)
}

// Delivery error constructors

func DeliveryError(message string) *AppError {
	return New(CodeDeliveryError, message, CategoryExternal)
}

func EmptyArtifact(filename string) *AppError {
	return New(CodeEmptyArtifact, fmt.Sprintf("retrieved artifact %q is empty", filename), CategoryExternal)
}

// Storage error constructors

func StorageCorruption(key string) *AppError {
	return New(CodeStorageCorruption, fmt.Sprintf("persisted record %q is unparsable", key), CategoryStorage)
}

func StorageError(message string) *AppError {
	return New(CodeStorageError, message, CategoryStorage)
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	// Connection-level failures are worth another attempt; everything the
	// server explicitly reported about a job is final.
	if appErr.Category == CategoryExternal {
		return appErr.Code != CodeEmptyArtifact
	}

	return false
}

// IsClientError returns true if the error is a client error
func IsClientError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryClient
}

// IsStorageError returns true if the error came from the session store
func IsStorageError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryStorage
}

// HasCode returns true if err is an AppError carrying the given code
func HasCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Code == code
}
