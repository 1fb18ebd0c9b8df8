package domain

import "net/http"

// ErrorKind buckets every failure the auth flow can surface to a client.
type ErrorKind int

const (
	// KindValidation covers missing or malformed input.
	KindValidation ErrorKind = iota
	// KindAuthentication covers bad credentials.
	KindAuthentication
	// KindToken covers missing, expired, malformed, or revoked tokens.
	KindToken
)

// Error is a client-facing failure. Message is a fixed, kind-mapped string;
// the underlying cause stays wrapped for server-side logging and is never
// sent to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// NewError builds a client-facing error with an optional wrapped cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status maps the error kind to its HTTP status code.
func (e *Error) Status() int {
	if e.Kind == KindAuthentication {
		return http.StatusUnauthorized
	}
	return http.StatusBadRequest
}
