// Package apperr defines the error taxonomy shared by the lifecycle services
// and the HTTP boundary. Every error reaching a client carries one of these codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeNotOffered         = "NOT_OFFERED"
	CodeInvalidState       = "INVALID_STATE"
	CodeInvalidBidState    = "INVALID_BID_STATE"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeInvalidBid         = "INVALID_BID"
	CodeAlreadyArrived     = "ALREADY_ARRIVED"
	CodeInvalidReference   = "INVALID_REFERENCE"
	CodeBookingExists      = "BOOKING_EXISTS"
	CodeDisputeExists      = "DISPUTE_EXISTS"
	CodeReviewExists       = "REVIEW_EXISTS"
	CodeBidExists          = "BID_EXISTS"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	CodeValidation:         http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeNotOffered:         http.StatusForbidden,
	CodeInvalidState:       http.StatusBadRequest,
	CodeInvalidBidState:    http.StatusBadRequest,
	CodeInvalidTransition:  http.StatusBadRequest,
	CodeInvalidBid:         http.StatusBadRequest,
	CodeAlreadyArrived:     http.StatusBadRequest,
	CodeInvalidReference:   http.StatusBadRequest,
	CodeBookingExists:      http.StatusConflict,
	CodeDisputeExists:      http.StatusConflict,
	CodeReviewExists:       http.StatusConflict,
	CodeBidExists:          http.StatusConflict,
	CodeConflict:           http.StatusConflict,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
}

// Error is a coded application error. Two errors match under errors.Is when
// their codes are equal, so the package-level sentinels below work as targets.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the status code the boundary should use.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause that is logged but never shown to clients.
func Wrap(code string, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrForbidden         = &Error{Code: CodeForbidden}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrNotOffered        = &Error{Code: CodeNotOffered}
	ErrInvalidState      = &Error{Code: CodeInvalidState}
	ErrInvalidBidState   = &Error{Code: CodeInvalidBidState}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrInvalidBid        = &Error{Code: CodeInvalidBid}
	ErrAlreadyArrived    = &Error{Code: CodeAlreadyArrived}
	ErrBookingExists     = &Error{Code: CodeBookingExists}
	ErrDisputeExists     = &Error{Code: CodeDisputeExists}
	ErrReviewExists      = &Error{Code: CodeReviewExists}
	ErrBidExists         = &Error{Code: CodeBidExists}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrRateLimited       = &Error{Code: CodeRateLimited}
	ErrUnavailable       = &Error{Code: CodeServiceUnavailable}
)

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

func NotFound(resource string) *Error {
	return New(CodeNotFound, "%s not found", resource)
}

func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, format, args...)
}

// InvalidState reports an operation that is illegal from the current state.
func InvalidState(kind, current, op string) *Error {
	return New(CodeInvalidState, "cannot %s %s in state %s", op, kind, current).
		WithDetails(map[string]string{"state": current})
}

func Unavailable(cause error) *Error {
	return Wrap(CodeServiceUnavailable, cause, "storage unavailable")
}
