package authclient

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredential indicates a structurally malformed or expired access token.
	ErrInvalidCredential = errors.New("invalid or expired credential")
	// ErrInvalidUserData indicates a user payload missing required identity or contact fields.
	ErrInvalidUserData = errors.New("invalid user data")
	// ErrRateLimitExceeded indicates the client-side call budget for a key is exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrAccountLocked indicates the client-side lockout cooldown is active for an account.
	ErrAccountLocked = errors.New("account locked")
	// ErrWeakPassword indicates a password below the minimum strength score.
	ErrWeakPassword = errors.New("password too weak")
	// ErrDisposableEmail indicates a signup email on the disposable-domain denylist.
	ErrDisposableEmail = errors.New("disposable email address not allowed")
	// ErrNoRefreshToken indicates a refresh was requested with no refresh token stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrSessionExpired indicates the session was invalidated and the user must sign in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated indicates an operation that requires an authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrClientClosed indicates use of a client after Close.
	ErrClientClosed = errors.New("client closed")
)

// APIError is the single normalized shape for every transport-level failure.
// Callers never see the raw *http.Response or the underlying round-trip error.
type APIError struct {
	// Status is the HTTP status code, or 0 for a pure network failure.
	Status int
	// Message is user-facing copy keyed by status code.
	Message string
	// Retryable reports whether the failure class is safe to retry.
	Retryable bool
	// RetryAfter is the server-advised wait before retrying, when provided.
	RetryAfter time.Duration
	// Err is the underlying cause, if any.
	Err error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is an [*APIError] marked retryable.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// statusMessages is the user-facing copy table. Unknown statuses fall back per class.
var statusMessages = map[int]string{
	400: "The request could not be processed. Please check your input and try again.",
	401: "Your session has expired. Please sign in again.",
	403: "You do not have permission to perform this action.",
	404: "The requested resource was not found.",
	408: "The request timed out. Please try again.",
	409: "This conflicts with existing data. Please refresh and try again.",
	422: "Some of the submitted data is invalid.",
	429: "Too many requests. Please wait a moment and try again.",
	500: "Something went wrong on our end. Please try again shortly.",
	502: "The service is temporarily unreachable. Please try again shortly.",
	503: "The service is temporarily unavailable. Please try again shortly.",
	504: "The service took too long to respond. Please try again shortly.",
}

func messageForStatus(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	switch {
	case status >= 500:
		return statusMessages[500]
	case status >= 400:
		return statusMessages[400]
	default:
		return "An unexpected error occurred."
	}
}

func newAPIError(status int, retryable bool, cause error) *APIError {
	return &APIError{
		Status:    status,
		Message:   messageForStatus(status),
		Retryable: retryable,
		Err:       cause,
	}
}

func networkError(cause error) *APIError {
	return &APIError{
		Message:   "Unable to reach the server. Please check your connection and try again.",
		Retryable: true,
		Err:       cause,
	}
}
