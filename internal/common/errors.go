package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Analysis pipeline errors
var (
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrFileTooLarge       = errors.New("file too large")
	ErrExtractionFailed   = errors.New("text extraction failed")
	ErrEmptyContent       = errors.New("empty content")
	ErrProviderError      = errors.New("model provider error")
	ErrEmptyResponse      = errors.New("empty model response")
	ErrMalformedResponse  = errors.New("malformed model response")
	ErrNoEntriesExtracted = errors.New("no entries extracted")
	ErrNoRawText          = errors.New("no raw text to reanalyze")
	ErrPersistenceFailed  = errors.New("persistence failed")
)

// ProviderError carries the upstream status and body of a failed model call.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("model provider status %d: %s", e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error { return ErrProviderError }

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus maps an error chain to the status returned to API callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrExtractionFailed),
		errors.Is(err, ErrNoEntriesExtracted), errors.Is(err, ErrNoRawText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrProviderError), errors.Is(err, ErrEmptyResponse),
		errors.Is(err, ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the AppError code in the chain, or a code derived from the sentinel.
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	switch {
	case errors.Is(err, ErrProviderError):
		return "PROVIDER_ERROR"
	case errors.Is(err, ErrNoRawText):
		return "NO_RAW_TEXT"
	case errors.Is(err, ErrPersistenceFailed):
		return "PERSISTENCE_FAILED"
	}
	switch HTTPStatus(err) {
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusBadRequest:
		return "INVALID_INPUT"
	default:
		return "INTERNAL"
	}
}

// UserMessage is the text shown to consultants and stored as analysis_error.
func UserMessage(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return fmt.Sprintf("AI 분석 요청이 실패했습니다. (HTTP %d)", pe.Status)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "분석 시간이 초과되었습니다."
	case errors.Is(err, context.Canceled):
		return "분석이 취소되었습니다."
	}
	return "분석 중 오류가 발생했습니다."
}
