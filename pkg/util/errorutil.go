package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError is the single error shape the HTTP layer knows how to render.
// Code is a stable machine-readable identifier; Message is safe to show to
// callers; Err holds the underlying cause for logs only.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

func newError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return newError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	return newError("NOT_FOUND", resource+" not found", http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return newError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return newError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return newError("CONFLICT", message, http.StatusConflict, details)
}

func NewUnavailable(message string, details map[string]any) error {
	return newError("DEPENDENCY_UNAVAILABLE", message, http.StatusServiceUnavailable, details)
}

func NewInternalError(err error) error {
	e := newError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, nil)
	e.Err = err
	return e
}

// ToDomainError normalizes any error into a DomainError. Row-absence errors
// from either database driver become NOT_FOUND; everything unrecognized is
// an internal error so no storage detail leaks to the caller.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return newError("NOT_FOUND", "resource not found", http.StatusNotFound, nil)
	}
	e := newError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, nil)
	e.Err = err
	return e
}

// MapError is ToDomainError with an error-typed result, for call sites that
// pass the value straight back up the handler chain.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
