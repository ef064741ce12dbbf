package errors

import (
	"errors"
	"fmt"
)

// Domain-specific error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateEntry indicates a unique constraint violation
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmailNotFound indicates the email was not found
	ErrEmailNotFound = errors.New("email not found")

	// ErrAccountNotFound indicates the mailbox account was not found
	ErrAccountNotFound = errors.New("mailbox account not found")

	// ErrAccountInactive indicates the mailbox account is disabled
	ErrAccountInactive = errors.New("mailbox account is not active")

	// ErrMissingIdentity indicates an email lacks the fields that identify it
	ErrMissingIdentity = errors.New("email is missing identity fields")

	// ErrAlreadyEnriched indicates the email already carries a successful result
	ErrAlreadyEnriched = errors.New("email already enriched")

	// ErrLLMThrottled indicates the analysis provider reported rate limiting
	ErrLLMThrottled = errors.New("analysis provider throttled the request")

	// ErrMalformedResponse indicates the analysis response could not be parsed
	ErrMalformedResponse = errors.New("analysis response is malformed")

	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates forbidden access
	ErrForbidden = errors.New("forbidden")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")
)

// Error codes for API responses
const (
	CodeNotFound          = "NOT_FOUND"
	CodeDuplicateEntry    = "DUPLICATE_ENTRY"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeAccountInactive   = "ACCOUNT_INACTIVE"
	CodeMissingIdentity   = "MISSING_IDENTITY"
	CodeAlreadyEnriched   = "ALREADY_ENRICHED"
	CodeLLMThrottled      = "LLM_THROTTLED"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternalError     = "INTERNAL_ERROR"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// LLMError represents a failed call to the analysis provider. Status carries
// the HTTP status of the last attempt so callers can distinguish throttling
// from hard failures.
type LLMError struct {
	Status   int    `json:"status"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// Error implements the error interface
func (e *LLMError) Error() string {
	return fmt.Sprintf("llm call failed (status %d after %d attempts): %s", e.Status, e.Attempts, e.Message)
}

// Throttled reports whether the provider rejected the call for rate reasons.
func (e *LLMError) Throttled() bool {
	return e.Status == 429 || e.Status == 529
}

// NewLLMError creates a new LLMError
func NewLLMError(status int, message string, attempts int) *LLMError {
	return &LLMError{Status: status, Message: message, Attempts: attempts}
}

// IsLLMError checks if the error is a failed provider call
func IsLLMError(err error) bool {
	var llmErr *LLMError
	return errors.As(err, &llmErr)
}

// GetLLMError extracts LLMError from an error if it exists
func GetLLMError(err error) *LLMError {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}
	return nil
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEmailNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsDuplicateEntry checks if the error is a duplicate entry error
func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrMissingIdentity)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsDuplicateEntry(err):
		return CodeDuplicateEntry
	case errors.Is(err, ErrMissingIdentity):
		return CodeMissingIdentity
	case IsInvalidInput(err):
		return CodeInvalidInput
	case errors.Is(err, ErrAccountInactive):
		return CodeAccountInactive
	case errors.Is(err, ErrAlreadyEnriched):
		return CodeAlreadyEnriched
	case errors.Is(err, ErrLLMThrottled):
		return CodeLLMThrottled
	case errors.Is(err, ErrMalformedResponse):
		return CodeMalformedResponse
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeInternalError
	}
}
