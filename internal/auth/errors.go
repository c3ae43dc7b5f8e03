package auth

import (
	"errors"
	"net/http"
)

// Code is a machine-readable failure reason exposed to clients.
type Code string

const (
	CodeUntrustedRedirect    Code = "UntrustedRedirect"
	CodeExpiredOrMissingFlow Code = "ExpiredOrMissingFlow"
	CodeStateMismatch        Code = "StateMismatch"
	CodeInvalidGrant         Code = "InvalidGrant"
	CodeRedirectMismatch     Code = "RedirectMismatch"
	CodeExchangeFailed       Code = "ExchangeFailed"
	CodeProfileFetchFailed   Code = "ProfileFetchFailed"
	CodeUntrustedIssuer      Code = "UntrustedIssuer"
	CodeIncompleteProfile    Code = "IncompleteProfile"
	CodeUnauthenticated      Code = "Unauthenticated"
	CodeListenerTimeout      Code = "ListenerTimeout"
	CodeListenerBindFailed   Code = "ListenerBindFailed"
	CodeInvalidRequest       Code = "InvalidRequest"
	CodeUnknownProvider      Code = "UnknownProvider"
	CodeRateLimited          Code = "RateLimited"
	CodeInternal             Code = "Internal"
)

var messages = map[Code]string{
	CodeUntrustedRedirect:    "redirect uri is not allowed",
	CodeExpiredOrMissingFlow: "authentication flow expired or invalid, please log in again",
	CodeStateMismatch:        "state validation failed",
	CodeInvalidGrant:         "authorization code is invalid or expired, please log in again",
	CodeRedirectMismatch:     "redirect uri mismatch",
	CodeExchangeFailed:       "failed to obtain access token",
	CodeProfileFetchFailed:   "failed to fetch user profile",
	CodeUntrustedIssuer:      "identity token could not be verified",
	CodeIncompleteProfile:    "provider did not return the required user information",
	CodeUnauthenticated:      "missing, invalid or expired token",
	CodeListenerTimeout:      "authentication timed out, please retry",
	CodeListenerBindFailed:   "could not start local callback listener",
	CodeInvalidRequest:       "invalid request",
	CodeUnknownProvider:      "unknown oauth provider",
	CodeRateLimited:          "too many requests",
	CodeInternal:             "internal error",
}

// Error is the single error type of the authentication core.
type Error struct {
	Code   Code
	Detail string // safe to show to the user
	Err    error  // internal cause, never rendered
}

func (e *Error) Error() string {
	msg := messages[e.Code]
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUntrustedRedirect    = &Error{Code: CodeUntrustedRedirect}
	ErrExpiredOrMissingFlow = &Error{Code: CodeExpiredOrMissingFlow}
	ErrStateMismatch        = &Error{Code: CodeStateMismatch}
	ErrInvalidGrant         = &Error{Code: CodeInvalidGrant}
	ErrRedirectMismatch     = &Error{Code: CodeRedirectMismatch}
	ErrExchangeFailed       = &Error{Code: CodeExchangeFailed}
	ErrProfileFetchFailed   = &Error{Code: CodeProfileFetchFailed}
	ErrUntrustedIssuer      = &Error{Code: CodeUntrustedIssuer}
	ErrIncompleteProfile    = &Error{Code: CodeIncompleteProfile}
	ErrUnauthenticated      = &Error{Code: CodeUnauthenticated}
	ErrListenerTimeout      = &Error{Code: CodeListenerTimeout}
	ErrListenerBindFailed   = &Error{Code: CodeListenerBindFailed}
	ErrInvalidRequest       = &Error{Code: CodeInvalidRequest}
	ErrUnknownProvider      = &Error{Code: CodeUnknownProvider}
	ErrRateLimited          = &Error{Code: CodeRateLimited}
	ErrInternal             = &Error{Code: CodeInternal}
)

// Fail builds an *Error with a user-facing detail and an internal cause.
func Fail(code Code, detail string, cause error) *Error {
	return &Error{Code: code, Detail: detail, Err: cause}
}

// CodeOf extracts the code of err. Foreign errors are Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code onto the status returned by the API.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// PublicMessage renders err for API responses. Internal causes are hidden.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return messages[CodeInternal]
}
