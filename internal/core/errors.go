package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable code that maps to an HTTP status
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// Acquisition pipeline
	ErrCodeCredential        = "CREDENTIAL_ERROR"
	ErrCodeMissingIdentifier = "MISSING_IDENTIFIER"
	ErrCodeUpstreamProtocol  = "UPSTREAM_PROTOCOL_ERROR"
	ErrCodeExtraction        = "EXTRACTION_ERROR"
	ErrCodeTransientNetwork  = "TRANSIENT_NETWORK_ERROR"
	ErrCodeInvalidURL        = "INVALID_URL"
)

// statusByCode maps codes to HTTP statuses; unknown codes are 500
var statusByCode = map[string]int{
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeInvalidURL:        http.StatusBadRequest,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeCredential:        http.StatusPreconditionFailed,
	ErrCodeMissingIdentifier: http.StatusUnprocessableEntity,
	ErrCodeExtraction:        http.StatusUnprocessableEntity,
	ErrCodeUpstreamProtocol:  http.StatusBadGateway,
	ErrCodeTransientNetwork:  http.StatusGatewayTimeout,
}

func NewValidationError(message string, err error) *AppError {
	return NewAppError(ErrCodeValidation, message, err)
}

func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrCodeNotFound, message, err)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(ErrCodeInternal, message, err)
}

func NewDatabaseError(message string, err error) *AppError {
	return NewAppError(ErrCodeDatabase, message, err)
}

func NewConfigurationError(message string, err error) *AppError {
	return NewAppError(ErrCodeConfiguration, message, err)
}

// NewCredentialError reports a missing or rejected session cookie
func NewCredentialError(message string, err error) *AppError {
	return NewAppError(ErrCodeCredential, message, err)
}

// NewMissingIdentifierError reports an account without a resolvable fakeid
func NewMissingIdentifierError(message string, err error) *AppError {
	return NewAppError(ErrCodeMissingIdentifier, message, err)
}

// NewUpstreamProtocolError reports an upstream reply that is not the expected shape
func NewUpstreamProtocolError(message string, err error) *AppError {
	return NewAppError(ErrCodeUpstreamProtocol, message, err)
}

// NewExtractionError reports a page with no recognizable article
func NewExtractionError(message string, err error) *AppError {
	return NewAppError(ErrCodeExtraction, message, err)
}

// NewTransientNetworkError reports a timeout, reset or non-2xx reply worth retrying later
func NewTransientNetworkError(message string, err error) *AppError {
	return NewAppError(ErrCodeTransientNetwork, message, err)
}

func NewInvalidURLError(message string, err error) *AppError {
	return NewAppError(ErrCodeInvalidURL, message, err)
}

// HasCode reports whether err wraps an AppError with the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// GetHTTPStatusCode returns the HTTP status for an error code
func GetHTTPStatusCode(err *AppError) int {
	if status, ok := statusByCode[err.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

// WriteErrorResponse writes err as a JSON error body
func WriteErrorResponse(w http.ResponseWriter, statusCode int, err *AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// HandleError writes err with the status of its code; errors without one are internal
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewInternalError("An unexpected error occurred", err)
	}
	WriteErrorResponse(w, GetHTTPStatusCode(appErr), appErr)
}

// WriteJSON writes a success payload in the same envelope shape as errors
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}
