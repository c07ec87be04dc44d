// Package errs defines the closed error taxonomy shared by the repository
// client, the image pipeline and the content publisher. Callers branch on
// Kind, never on message text.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	ConfigurationMissing Kind = "configuration_missing"
	ValidationFailed     Kind = "validation_failed"
	NotFound             Kind = "not_found"
	Unauthorized         Kind = "unauthorized"
	Forbidden            Kind = "forbidden"
	Conflict             Kind = "conflict"
	RateLimited          Kind = "rate_limited"
	NetworkUnreachable   Kind = "network_unreachable"
	Timeout              Kind = "timeout"
	EncodingFailed       Kind = "encoding_failed"
	Unknown              Kind = "unknown"
)

var defaultHints = map[Kind]string{
	ConfigurationMissing: "repository is not configured: set token, owner and repo first",
	ValidationFailed:     "the request is invalid: correct the input and retry",
	NotFound:             "repository or path not found: check owner, repo and that the branch name is spelled correctly",
	Unauthorized:         "token is invalid or expired: generate a new personal access token",
	Forbidden:            "token lacks repo scope or the account has no write access to this repository",
	Conflict:             "file changed on the server or already exists: reload it and retry",
	RateLimited:          "GitHub API rate limit reached: wait for the limit window to reset",
	NetworkUnreachable:   "GitHub is unreachable: check the network connection or proxy",
	Timeout:              "request timed out: check the network connection and retry",
	EncodingFailed:       "image could not be decoded or re-encoded: try another file",
	Unknown:              "unexpected error from GitHub",
}

// Error is the tagged error value surfaced by every component.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status when the failure came from the API, else 0
	Message string // server or component message
	Hint    string // human-readable remediation
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the default hint for kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Hint: defaultHints[kind]}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error of kind around err.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

// WithHint replaces the remediation hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HintFor returns the remediation hint carried by err, falling back to the
// kind's default hint.
func HintFor(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Hint != "" {
			return e.Hint
		}
		return defaultHints[e.Kind]
	}
	return defaultHints[Unknown]
}

// DefaultHint returns the default remediation hint for kind.
func DefaultHint(kind Kind) string {
	return defaultHints[kind]
}

// HTTPStatus maps a kind to the status code the HTTP API answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case ConfigurationMissing, ValidationFailed:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case NetworkUnreachable:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	case EncodingFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
