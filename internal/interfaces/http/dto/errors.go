package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	ErrCodeValidationFormat   = "ERR_VALIDATION_FORMAT"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeUnauthorized    = "ERR_UNAUTHORIZED"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Ledger error codes
const (
	// ErrCodeTerminalState rejects payments against paid or cancelled invoices
	ErrCodeTerminalState = "ERR_TERMINAL_STATE"
	// ErrCodeExceedsBalance carries balance_due_minor in the error details
	ErrCodeExceedsBalance = "ERR_EXCEEDS_BALANCE"
	ErrCodeInvalidState   = "ERR_INVALID_STATE"
	// ErrCodePartialFailure accompanies a recorded but unallocated payment
	ErrCodePartialFailure = "ERR_PARTIAL_FAILURE"
	ErrCodeIntegrity      = "ERR_INTEGRITY"
	ErrCodeGateway        = "ERR_GATEWAY"
	ErrCodeRateLimited    = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeInvalidJSON:        http.StatusBadRequest,
	ErrCodeRequestTooLarge:    http.StatusRequestEntityTooLarge,
	ErrCodeUnauthorized:       http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeTerminalState:  http.StatusUnprocessableEntity,
	ErrCodeExceedsBalance: http.StatusUnprocessableEntity,
	ErrCodeInvalidState:   http.StatusUnprocessableEntity,
	ErrCodePartialFailure: http.StatusAccepted,
	ErrCodeIntegrity:      http.StatusConflict,
	ErrCodeGateway:        http.StatusBadGateway,
	ErrCodeRateLimited:    http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"INVALID_INPUT":        ErrCodeValidation,
	"INVALID_STATE":        ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"VALIDATION_FAILED":    ErrCodeValidation,
	"TERMINAL_STATE":       ErrCodeTerminalState,
	"EXCEEDS_BALANCE":      ErrCodeExceedsBalance,
	"DUPLICATE_REFERENCE":  ErrCodeConflict,
	"PARTIAL_FAILURE":      ErrCodePartialFailure,
	"INTEGRITY_VIOLATION":  ErrCodeIntegrity,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
