package authclient

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMessageForStatus(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{401, "Your session has expired. Please sign in again."},
		{429, "Too many requests. Please wait a moment and try again."},
		{511, statusMessages[500]},
		{418, statusMessages[400]},
		{302, "An unexpected error occurred."},
	}
	for _, tc := range cases {
		if got := messageForStatus(tc.status); got != tc.want {
			t.Errorf("messageForStatus(%d) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := networkError(cause)

	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if err.Status != 0 || !err.Retryable {
		t.Fatalf("unexpected network error shape: %+v", err)
	}
	if strings.Contains(err.Error(), "status") {
		t.Fatalf("network error must not report a status: %q", err.Error())
	}
}

func TestAPIErrorStatusInMessage(t *testing.T) {
	err := newAPIError(503, true, nil)
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("status missing from message: %q", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(newAPIError(503, true, nil)) {
		t.Fatal("retryable 503 not recognized")
	}
	if IsRetryable(newAPIError(403, false, nil)) {
		t.Fatal("403 must not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("non-API error must not be retryable")
	}

	wrapped := fmt.Errorf("calling backend: %w", newAPIError(502, true, nil))
	if !IsRetryable(wrapped) {
		t.Fatal("wrapped APIError not recognized")
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrInvalidCredential, ErrInvalidUserData, ErrRateLimitExceeded,
		ErrAccountLocked, ErrWeakPassword, ErrDisposableEmail,
		ErrNoRefreshToken, ErrSessionExpired, ErrNotAuthenticated, ErrClientClosed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Fatalf("sentinels %d and %d alias each other", i, j)
			}
		}
	}
}
