// Package errors defines the API error taxonomy surfaced to clients.
package errors

import "net/http"

// APIError represents a client-facing error with an HTTP status and a
// machine-readable code. Sibling services key off Code, not Message.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a copy of a predefined error with a custom message.
func NewAPIError(baseError *APIError, message string) *APIError {
	return &APIError{
		HTTPStatus: baseError.HTTPStatus,
		Code:       baseError.Code,
		Message:    message,
	}
}

// Generic errors
var (
	ErrBadRequest        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "Invalid request parameters"}
	ErrInvalidJSON       = &APIError{HTTPStatus: http.StatusBadRequest, Code: "INVALID_JSON", Message: "Invalid JSON format"}
	ErrValidation        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Request validation failed"}
	ErrDuplicateResource = &APIError{HTTPStatus: http.StatusConflict, Code: "DUPLICATE_RESOURCE", Message: "Resource already exists"}
	ErrResourceNotFound  = &APIError{HTTPStatus: http.StatusNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrInternalServer    = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "Internal server error"}
	ErrDatabase          = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "DATABASE_ERROR", Message: "Database operation failed"}
	ErrUnauthorized      = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Authentication required"}
	ErrForbidden         = &APIError{HTTPStatus: http.StatusForbidden, Code: "FORBIDDEN", Message: "Access denied"}
)

// Attendance domain errors. State-conflict and credential errors are
// client-caused; capacity and membership errors are business-rule rejections
// that should not be blindly retried. MEMBERSHIP_UNAVAILABLE is the one
// system-level failure in the set and is safe to retry with backoff.
var (
	ErrAlreadyCheckedIn      = &APIError{HTTPStatus: http.StatusConflict, Code: "ALREADY_CHECKED_IN", Message: "Member already has an active session"}
	ErrNotCheckedIn          = &APIError{HTTPStatus: http.StatusConflict, Code: "NOT_CHECKED_IN", Message: "Member has no active session"}
	ErrTokenNotFound         = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "TOKEN_NOT_FOUND", Message: "Check-in token not found or revoked"}
	ErrTokenUsed             = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "TOKEN_USED", Message: "Check-in token has already been used"}
	ErrTokenExpired          = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "TOKEN_EXPIRED", Message: "Check-in token has expired"}
	ErrCapacityExceeded      = &APIError{HTTPStatus: http.StatusConflict, Code: "CAPACITY_EXCEEDED", Message: "Gym is at maximum capacity"}
	ErrMembershipInvalid     = &APIError{HTTPStatus: http.StatusForbidden, Code: "MEMBERSHIP_INVALID", Message: "Membership is not valid for this gym"}
	ErrGymClosed             = &APIError{HTTPStatus: http.StatusForbidden, Code: "GYM_CLOSED", Message: "Gym is not currently operating"}
	ErrGymNotFound           = &APIError{HTTPStatus: http.StatusNotFound, Code: "GYM_NOT_FOUND", Message: "Gym not found"}
	ErrCheckInLimitReached   = &APIError{HTTPStatus: http.StatusTooManyRequests, Code: "CHECKIN_LIMIT_REACHED", Message: "Daily check-in limit reached"}
	ErrMembershipUnavailable = &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: "MEMBERSHIP_UNAVAILABLE", Message: "Membership service is unavailable"}
)
