package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so transports can branch on category instead of
// matching message text.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindQuota         Kind = "quota"
	KindContentPolicy Kind = "content_policy"
	KindBilling       Kind = "billing"
	KindTransient     Kind = "transient"
	KindConfig        Kind = "config"
	KindProvider      Kind = "provider"
)

var (
	ErrStyleNotFound     = errors.New("style not found")
	ErrPromptRequired    = errors.New("prompt required")
	ErrPromptTooLong     = errors.New("prompt too long")
	ErrReferenceRequired = errors.New("reference image required")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrRefinementFailed  = errors.New("refinement failed")
)

// Error is the single error shape crossing package boundaries. Message is safe
// to show to clients; Detail and Err are only surfaced in development.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus resolves the status code, defaulting per kind.
func (e *Error) HTTPStatus() int {
	if e.Status > 0 {
		return e.Status
	}
	return kindStatus(e.Kind)
}

func kindStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindQuota:
		return http.StatusTooManyRequests
	case KindContentPolicy:
		return http.StatusBadRequest
	case KindBilling:
		return http.StatusPaymentRequired
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewValidation(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

func NewConfig(msg string, err error) *Error {
	return &Error{Kind: KindConfig, Message: msg, Err: err}
}

func NewQuota(msg string) *Error {
	return &Error{Kind: KindQuota, Message: msg, Err: ErrQuotaExceeded}
}

// NewProvider wraps an upstream failure. status is the upstream HTTP status
// when known and is echoed to the client.
func NewProvider(kind Kind, msg string, status int, err error) *Error {
	e := &Error{Kind: kind, Message: msg, Status: status, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

// StyleNotFound is the caller-visible error for an unknown style id.
func StyleNotFound(id string) *Error {
	return NewValidation(fmt.Sprintf("Style '%s' not found.", id), ErrStyleNotFound)
}

// KindOf returns the category of err, or KindProvider for unclassified errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindProvider
}

// StatusOf maps err onto an HTTP status.
func StatusOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.HTTPStatus()
	}
	return http.StatusInternalServerError
}
