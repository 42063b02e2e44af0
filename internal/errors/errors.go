package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/rentaltax/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound         = "NOT_FOUND"
	ErrBadRequest       = "BAD_REQUEST"
	ErrInternalServer   = "INTERNAL_SERVER_ERROR"
	ErrValidation       = "VALIDATION_ERROR"
	ErrStoreUnavailable = "STORE_UNAVAILABLE"
	ErrUnauthorized     = "UNAUTHORIZED"
	ErrForbidden        = "FORBIDDEN"
)

// FailureCode is the envelope code of every error response. Successful
// responses carry 0.
const FailureCode = 1

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Code  int         `json:"code"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

func respond(c *gin.Context, status int, detail ErrorDetail) {
	detail.RequestID = middleware.GetRequestID(c)
	c.JSON(status, ErrorResponse{
		Code:  FailureCode,
		Error: detail,
	})
}

// NotFound returns a 404 Not Found error response.
// It logs a warning and sends a JSON response with the error details.
func NotFound(c *gin.Context, message string) {
	if log := middleware.GetLogger(c); log != nil {
		log.Warn("Resource not found", map[string]interface{}{
			"error_message": message,
			"path":          c.Request.URL.Path,
		})
	}

	respond(c, http.StatusNotFound, ErrorDetail{
		Code:    ErrNotFound,
		Message: message,
	})
}

// BadRequest returns a 400 Bad Request error response with optional details.
// It logs a warning and sends a JSON response with the error details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	logFields := map[string]interface{}{
		"error_message": message,
		"path":          c.Request.URL.Path,
	}
	if details != nil {
		logFields["details"] = details
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Warn("Bad request", logFields)
	}

	respond(c, http.StatusBadRequest, ErrorDetail{
		Code:    ErrBadRequest,
		Message: message,
		Details: details,
	})
}

// Unauthorized returns a 401 response for a missing credential.
func Unauthorized(c *gin.Context, message string) {
	if log := middleware.GetLogger(c); log != nil {
		log.Warn("Unauthorized request", map[string]interface{}{
			"path": c.Request.URL.Path,
		})
	}

	respond(c, http.StatusUnauthorized, ErrorDetail{
		Code:    ErrUnauthorized,
		Message: message,
	})
}

// Forbidden returns a 403 response for a rejected credential or a disabled
// operation.
func Forbidden(c *gin.Context, message string) {
	if log := middleware.GetLogger(c); log != nil {
		log.Warn("Forbidden request", map[string]interface{}{
			"path": c.Request.URL.Path,
		})
	}

	respond(c, http.StatusForbidden, ErrorDetail{
		Code:    ErrForbidden,
		Message: message,
	})
}

// ServiceUnavailable returns a 503 response when the record store cannot be
// reached. The underlying error is logged, never sent to the client.
func ServiceUnavailable(c *gin.Context, message string, err error) {
	if log := middleware.GetLogger(c); log != nil {
		log.Error("Record store unavailable", err, map[string]interface{}{
			"error_message": message,
			"path":          c.Request.URL.Path,
			"method":        c.Request.Method,
		})
	}

	respond(c, http.StatusServiceUnavailable, ErrorDetail{
		Code:    ErrStoreUnavailable,
		Message: message,
	})
}

// InternalServerError returns a 500 Internal Server Error response.
// It logs the error with full context and sends a generic error message to the client.
// The actual error details are not exposed to the client for security reasons.
func InternalServerError(c *gin.Context, message string, err error) {
	if log := middleware.GetLogger(c); log != nil {
		log.Error("Internal server error", err, map[string]interface{}{
			"error_message": message,
			"path":          c.Request.URL.Path,
			"method":        c.Request.Method,
		})
	}

	respond(c, http.StatusInternalServerError, ErrorDetail{
		Code:    ErrInternalServer,
		Message: message,
	})
}

// ValidationError returns a 400 Bad Request error response with field-specific validation errors.
// It parses the validation errors from the validator library and formats them for the client.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	// Convert validation errors to a map of field -> error message
	details := make(map[string]interface{})
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Warn("Validation error", map[string]interface{}{
			"path":   c.Request.URL.Path,
			"fields": details,
		})
	}

	respond(c, http.StatusBadRequest, ErrorDetail{
		Code:    ErrValidation,
		Message: "Validation failed for one or more fields",
		Details: details,
	})
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "required_without":
		return "This field is required unless " + err.Param() + " is set"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lt":
		return "Must be less than " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
