package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error codes surfaced to API callers.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeInvalidOrderData       = "INVALID_ORDER_DATA"
	CodeNotFound               = "NOT_FOUND"
	CodeTicketNotFound         = "TICKET_NOT_FOUND"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeForbidden              = "FORBIDDEN"
	CodeUnauthorizedActor      = "UNAUTHORIZED"
	CodeConflict               = "CONFLICT"
	CodeDuplicateEmail         = "DUPLICATE_EMAIL"
	CodeNoAgentsAvailable      = "NO_AGENTS_AVAILABLE"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternal               = "INTERNAL_ERROR"
)

const uniqueViolation = "23505"

// DomainError standardizes application errors.
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

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewInvalidOrderData(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidOrderData, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewTicketNotFound(ticketID string) error {
	return NewDomainError(CodeTicketNotFound, "ticket not found", http.StatusNotFound,
		map[string]any{"ticket_id": ticketID})
}

// NewUnauthenticated is returned when the caller identity cannot be established.
func NewUnauthenticated(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewUnauthorizedActor is returned when an identified caller acts on a resource
// they do not own, such as a creator accepting another creator's order.
func NewUnauthorizedActor(message string, details map[string]any) error {
	return NewDomainError(CodeUnauthorizedActor, message, http.StatusForbidden, details)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewDuplicateEmail(email string) error {
	return NewDomainError(CodeDuplicateEmail, "email already registered", http.StatusConflict,
		map[string]any{"email": email})
}

func NewNoAgentsAvailable() error {
	return NewDomainError(CodeNoAgentsAvailable, "no support agents available", http.StatusConflict, nil)
}

func NewInvalidStateTransition(from, to string) error {
	return NewDomainError(CodeInvalidStateTransition, "invalid state transition", http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

func NewRateLimited(message string) error {
	return NewDomainError(CodeRateLimited, message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsNoRows reports whether err signals a missing row.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if IsNoRows(err) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	if IsUniqueViolation(err) {
		return NewConflict("resource already exists", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
