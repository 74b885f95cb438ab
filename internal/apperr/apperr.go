// Package apperr defines the error taxonomy shared by every stage of the
// insights pipeline. Each failure carries an HTTP status, a stable code and
// a client-safe message; the underlying cause is kept for server logs only.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is a stable, client-visible error code.
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindUnauthorized  Kind = "UNAUTHORIZED"
	KindRangeTooLarge Kind = "RANGE_TOO_LARGE"
	KindRateLimited   Kind = "RATE_LIMITED"
	KindDB            Kind = "DB_ERROR"
	KindInvalidAPIKey Kind = "INVALID_API_KEY"
	KindUpstreamAI    Kind = "UPSTREAM_AI_ERROR"
	KindNotFound      Kind = "NOT_FOUND"
	KindInternal      Kind = "INTERNAL_ERROR"
)

var statusByKind = map[Kind]int{
	KindValidation:    http.StatusBadRequest,
	KindUnauthorized:  http.StatusUnauthorized,
	KindRangeTooLarge: http.StatusBadRequest,
	KindRateLimited:   http.StatusTooManyRequests,
	KindDB:            http.StatusInternalServerError,
	KindInvalidAPIKey: http.StatusServiceUnavailable,
	KindUpstreamAI:    http.StatusBadGateway,
	KindNotFound:      http.StatusNotFound,
	KindInternal:      http.StatusInternalServerError,
}

// Status returns the HTTP status bound to the kind.
func (k Kind) Status() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	// Details is structured validation context. Only rendered outside production.
	Details any
	// RetryAt is when a rejected client may retry. Zero when not applicable.
	RetryAt time.Time
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status is the HTTP status for the response.
func (e *Error) Status() int { return e.Kind.Status() }

// Code is the stable client-visible code.
func (e *Error) Code() string { return string(e.Kind) }

// WithDetails returns a copy carrying validation details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithRetryAt returns a copy carrying the retry instant.
func (e *Error) WithRetryAt(t time.Time) *Error {
	cp := *e
	cp.RetryAt = t
	return &cp
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind retaining cause for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func RangeTooLarge(message string) *Error { return New(KindRangeTooLarge, message) }

func Unauthorized() *Error { return New(KindUnauthorized, "Unauthorized") }

func RateLimited(message string) *Error { return New(KindRateLimited, message) }

func DB(cause error) *Error {
	return Wrap(KindDB, "Error al consultar la base de datos", cause)
}

func UpstreamAI(message string, cause error) *Error {
	return Wrap(KindUpstreamAI, message, cause)
}

func InvalidAPIKey(cause error) *Error {
	return Wrap(KindInvalidAPIKey, "AI provider credential is missing or was rejected", cause)
}

// As extracts the classified error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// From classifies any error. Unclassified errors become INTERNAL_ERROR with
// a generic message so internals never reach clients.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return Wrap(KindInternal, "Internal Server Error", err)
}

// ShouldLog reports whether a classified error is logged server-side:
// every 5xx plus the upstream, database and rate-limit kinds.
func ShouldLog(e *Error) bool {
	if e == nil {
		return false
	}
	if e.Status() >= http.StatusInternalServerError {
		return true
	}
	switch e.Kind {
	case KindUpstreamAI, KindDB, KindRateLimited:
		return true
	}
	return false
}

// CauseChain flattens the wrapped causes for logging.
func CauseChain(err error) []string {
	var chain []string
	for cur := errors.Unwrap(err); cur != nil; cur = errors.Unwrap(cur) {
		chain = append(chain, cur.Error())
	}
	return chain
}
