package apperror

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("notification not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("notification access forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal server error")
	ErrInvalidInput = errors.New("invalid input")

	// ErrDecode marks metadata that can never be turned into a typed variant.
	// Ingestion treats it as permanent.
	ErrDecode = errors.New("metadata decode failed")

	// ErrValidation marks an inbound event that fails structural checks.
	ErrValidation = errors.New("event validation failed")
)

// AppError is a custom error type that can hold an HTTP status code
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsPermanent reports whether retrying the operation can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrValidation)
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDecode) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
