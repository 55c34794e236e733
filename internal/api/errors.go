package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/api/shared"
	"github.com/tasklight/tasklight-api/internal/ratelimit"
	"github.com/tasklight/tasklight-api/internal/service"
	"github.com/tasklight/tasklight-api/internal/service/auth"
	"github.com/tasklight/tasklight-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErr *service.ValidationError
	var conflictErr *service.ConflictError
	var rateLimitErr *ratelimit.Error
	var dataAccessErr *service.DataAccessError

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	// Bad request errors
	case errors.As(err, &validationErr),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.As(err, &conflictErr),
		errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	// Rate limiting
	case errors.As(err, &rateLimitErr):
		return http.StatusTooManyRequests

	// Data access failures are internal by definition
	case errors.As(err, &dataAccessErr):
		return http.StatusInternalServerError

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	// Handle nil error
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *service.ValidationError
	var conflictErr *service.ConflictError
	var rateLimitErr *ratelimit.Error

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid refresh token"

	// Validation errors carry their own client-safe message
	case errors.As(err, &validationErr):
		return validationErr.Message

	// Not found errors
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	// Conflict errors
	case errors.As(err, &conflictErr):
		return conflictErr.Reason

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	// Rate limiting
	case errors.As(err, &rateLimitErr):
		return "Too many requests, please try again later"

	// Default case for unknown errors
	default:
		return "An unexpected error occurred"
	}
}

// BuildErrorResponse assembles the full error body for an internal error,
// including the extra fields some outcomes carry: the matched task ID on
// duplicate conflicts and the retry-after hint on rate-limit rejections.
func BuildErrorResponse(err error) (int, shared.ErrorResponse) {
	status := MapErrorToStatusCode(err)
	response := shared.ErrorResponse{
		Error: GetSafeErrorMessage(err),
	}

	var conflictErr *service.ConflictError
	if errors.As(err, &conflictErr) && conflictErr.TaskID != uuid.Nil {
		response.TaskID = conflictErr.TaskID.String()
	}

	var rateLimitErr *ratelimit.Error
	if errors.As(err, &rateLimitErr) {
		response.RetryAfter = int(rateLimitErr.RetryAfter.Seconds())
	}

	return status, response
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Extract the field name and validation tag
		// Example format: "Key: 'LoginRequest.Email' Error:Field validation for 'Email' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			// Further split to get just the field validation part
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				// Create a cleaner error message
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	// Fall back to a generic validation error message
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
