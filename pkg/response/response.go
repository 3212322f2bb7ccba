package response

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "travelchat-backend/pkg/errors"
)

// Response represents standard API response envelope
type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Meta    Meta         `json:"meta"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`    // Error code (e.g., "SEND_REJECTED")
	Message string `json:"message"` // Human-readable error message
}

// Meta contains response metadata
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			RequestID: getRequestID(c),
		},
	})
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    errorCode,
			Message: errorMessage,
		},
		Meta: Meta{
			Timestamp: time.Now().UTC(),
			RequestID: getRequestID(c),
		},
	})
}

// FromError renders any service error. AppErrors keep their code and status,
// validator errors become VALIDATION_ERROR, anything else is a 500 with a fixed text.
func FromError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(c, ValidationMessage(validationErrs))
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		Error(c, appErr.StatusCode, string(appErr.Code), appErr.Message)
		return
	}

	InternalError(c, "An unexpected error occurred")
}

// BindError renders a gin binding failure
func BindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(c, ValidationMessage(validationErrs))
		return
	}
	ValidationError(c, "Invalid request body")
}

// ValidationMessage turns the first failed rule into a readable sentence
func ValidationMessage(errs validator.ValidationErrors) string {
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return field + " is required"
		case "min":
			return field + " must be at least " + fe.Param()
		case "max":
			return field + " must be at most " + fe.Param()
		case "oneof":
			return field + " must be one of: " + fe.Param()
		case "uuid", "uuid4":
			return field + " must be a valid id"
		default:
			return field + " is invalid"
		}
	}
	return "Invalid input data"
}

// ValidationError sends a validation error response (400)
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

// Unauthorized sends unauthorized error (401)
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden sends forbidden error (403)
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, "FORBIDDEN", message)
}

// NotFound sends not found error (404)
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message)
}

// TooManyRequests sends rate limit error (429)
func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", message)
}

// InternalError sends internal server error (500)
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
