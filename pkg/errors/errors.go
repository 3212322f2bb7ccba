package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Authorization errors
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeSendRejected ErrorCode = "SEND_REJECTED"

	// Not found errors
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	ErrCodeMessageNotFound      ErrorCode = "MESSAGE_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeAlreadyBlocked ErrorCode = "ALREADY_BLOCKED"

	// Rate limiting errors
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// ErrBlocked marks a send rejected because the recipient blocked the sender.
// It is only reachable through errors.Is; the rendered message never mentions it.
var ErrBlocked = errors.New("sender is blocked by recipient")

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

// SendRejectedError hides a block behind a generic rejection
func SendRejectedError() *AppError {
	return WrapWithStatus(ErrCodeSendRejected, "Message could not be sent", http.StatusForbidden, ErrBlocked)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func ConversationNotFoundError() *AppError {
	return NewWithStatus(ErrCodeConversationNotFound, "Conversation not found", http.StatusNotFound)
}

func MessageNotFoundError() *AppError {
	return NewWithStatus(ErrCodeMessageNotFound, "Message not found", http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

func AlreadyBlockedError() *AppError {
	return NewWithStatus(ErrCodeAlreadyBlocked, "User is already blocked", http.StatusConflict)
}

// Rate limiting errors
func RateLimitExceededError() *AppError {
	return NewWithStatus(ErrCodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

// UnavailableError wraps a storage failure so callers can tell it from invalid input
func UnavailableError(err error) *AppError {
	return WrapWithStatus(ErrCodeServiceUnavail, "Service temporarily unavailable, please retry", http.StatusServiceUnavailable, err)
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
