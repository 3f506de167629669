package app

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	kind    error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets callers match the category with errors.Is.
func (e *DomainError) Unwrap() error {
	return e.kind
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// FieldError is the details payload of a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func invalidInput(field, message string) error {
	err := domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, []FieldError{{Field: field, Message: message}})
	err.kind = ErrInvalidInput
	return err
}

func unauthenticated() error {
	err := domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	err.kind = ErrUnauthenticated
	return err
}

func forbidden(message string) error {
	err := domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
	err.kind = ErrForbidden
	return err
}

func notFound(message string) error {
	err := domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
	err.kind = ErrNotFound
	return err
}
