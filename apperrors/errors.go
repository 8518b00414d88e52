package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies a failure so the HTTP boundary can answer without inspecting messages
type Kind string

const (
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidState        Kind = "INVALID_STATE"
	KindConflict            Kind = "CONFLICT"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindInternal            Kind = "INTERNAL_ERROR"
)

// postgres unique_violation
const pgUniqueViolation = "23505"

// AppError is the error type returned by every service operation
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind onto a response status code
func (e *AppError) HTTPStatus() int {
	return StatusFor(e.Kind)
}

// StatusFor maps a kind onto a response status code
func StatusFor(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(err error, kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func Unauthenticated(message string) *AppError { return New(KindUnauthenticated, message) }
func Forbidden(message string) *AppError       { return New(KindForbidden, message) }
func NotFound(message string) *AppError        { return New(KindNotFound, message) }
func InvalidState(message string) *AppError    { return New(KindInvalidState, message) }
func Conflict(message string) *AppError        { return New(KindConflict, message) }
func InvalidInput(message string) *AppError    { return New(KindInvalidInput, message) }

func InsufficientBalance(message string) *AppError {
	return New(KindInsufficientBalance, message)
}

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error) *AppError {
	return Wrap(err, KindInternal, "Internal server error")
}

// As extracts an *AppError from the chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err; anything that is not an *AppError is internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromDB translates a datastore error. what names the entity for not-found and duplicate messages.
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Wrap(err, KindNotFound, what+" not found")
	}
	if IsUniqueViolation(err) {
		return Wrap(err, KindConflict, what+" already exists")
	}
	return Internal(err)
}

// IsUniqueViolation detects duplicate-key failures from either gorm's translated error or postgres
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
