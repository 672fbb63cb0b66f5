package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"

	// Validation errors
	CodeBadRequest      = "BAD_REQUEST"
	CodeMissingField    = "MISSING_FIELD"
	CodeInvalidSettings = "INVALID_SETTINGS"
	CodeUnknownJobType  = "UNKNOWN_JOB_TYPE"

	// Resource errors
	CodeNotFound          = "NOT_FOUND"
	CodeMissingCredential = "MISSING_CREDENTIAL"

	// External errors
	CodeDatabaseError = "DATABASE_ERROR"
	CodeExternalError = "EXTERNAL_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, http.StatusUnauthorized)
}

// Validation errors
func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// MissingMetadata is job-fatal: a single-item job arrived without its target id.
func MissingMetadata(field string) *AppError {
	return New(CodeMissingField, field+" required in metadata", http.StatusBadRequest).
		WithDetail("field", field)
}

func InvalidSettings(message string) *AppError {
	return New(CodeInvalidSettings, message, http.StatusBadRequest)
}

func UnknownJobType(jobType string) *AppError {
	return New(CodeUnknownJobType, "unknown job type: "+jobType, http.StatusBadRequest).
		WithDetail("job_type", jobType)
}

// Resource errors
func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound)
}

// MissingCredential is job-fatal: the user has no stored provider credential.
func MissingCredential(userID string) *AppError {
	return New(CodeMissingCredential, "no OAuth token found for user", http.StatusNotFound).
		WithDetail("user_id", userID)
}

// External errors
func DatabaseError(err error) *AppError {
	return Wrap(err, CodeDatabaseError, "database error", http.StatusInternalServerError)
}

func ExternalError(service string, err error) *AppError {
	return Wrap(err, CodeExternalError, service+" request failed", http.StatusBadGateway)
}

// Internal errors
func Internal(err error) *AppError {
	return Wrap(err, CodeInternalError, "internal error", http.StatusInternalServerError)
}

func ConfigError(message string) *AppError {
	return New(CodeConfigError, message, http.StatusInternalServerError)
}

// Helper functions

// IsAppError reports whether err (or anything it wraps) is an *AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts the *AppError from err, or nil.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	if appErr := AsAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status carried by err, defaulting to 500.
func StatusOf(err error) int {
	if appErr := AsAppError(err); appErr != nil && appErr.HTTPStatus() != 0 {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
