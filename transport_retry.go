package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

// dispatch runs the attempt loop for one logical request. Retry state lives
// in local values: retries counts 5xx/network replays, refreshed marks the
// single 401 refresh-and-replay, rateReplayed marks the single 429 replay.
func (t *Transport) dispatch(ctx context.Context, rc requestContext, bodyBytes []byte, out any) error {
	retries := 0
	refreshed := false
	rateReplayed := false

	for {
		resp, err := t.roundTrip(ctx, rc, bodyBytes)
		if err != nil {
			// Pure network failure: no response at all. Retryable; replayed
			// only for idempotent methods within the attempt budget.
			if idempotent(rc.method) && retries < t.cfg.MaxRetries {
				if serr := t.backoff(ctx, retries); serr != nil {
					return t.fail(rc, networkError(serr))
				}
				retries++
				t.metrics.Inc(MetricRequestRetried)
				continue
			}
			return t.fail(rc, networkError(err))
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		status := resp.StatusCode

		switch {
		case status >= 200 && status < 300:
			return t.succeed(ctx, rc, resp, respBody, readErr, out)

		case status == http.StatusUnauthorized:
			retry, err := t.handleUnauthorized(ctx, rc, refreshed, respBody)
			if retry {
				refreshed = true
				t.metrics.Inc(MetricRequestRetried)
				continue
			}
			return t.fail(rc, err)

		case status == http.StatusForbidden:
			t.recorder.Record(ctx, "access_denied", rc.path, AuditFailure, map[string]string{
				"request_id": rc.id,
				"method":     rc.method,
			})
			return t.fail(rc, t.apiError(http.StatusForbidden, false, respBody))

		case status == http.StatusTooManyRequests:
			wait := retryAfter(resp, t.cfg.RateLimitFallbackWait)
			if rateReplayed {
				apiErr := t.apiError(status, true, respBody)
				apiErr.RetryAfter = wait
				return t.fail(rc, apiErr)
			}
			if serr := t.sleep(ctx, wait); serr != nil {
				return t.fail(rc, networkError(serr))
			}
			rateReplayed = true
			t.metrics.Inc(MetricRequestRetried)
			continue

		case status >= 500:
			if idempotent(rc.method) && retries < t.cfg.MaxRetries {
				if serr := t.backoff(ctx, retries); serr != nil {
					return t.fail(rc, networkError(serr))
				}
				retries++
				t.metrics.Inc(MetricRequestRetried)
				continue
			}
			return t.fail(rc, t.apiError(status, true, respBody))

		default:
			return t.fail(rc, t.apiError(status, false, respBody))
		}
	}
}

// succeed finishes a 2xx response: latency metric, CSRF rotation, sensitive
// audit, and JSON decoding.
func (t *Transport) succeed(ctx context.Context, rc requestContext, resp *http.Response, respBody []byte, readErr error, out any) error {
	t.metrics.Inc(MetricRequestSuccess)
	t.metrics.Observe(MetricRequestLatency, t.now().Sub(rc.startedAt))

	if rotated := resp.Header.Get(headerCSRF); rotated != "" && rotated != t.store.CSRFToken() {
		t.store.SetCSRFToken(rotated)
		t.metrics.Inc(MetricCSRFRotated)
	}

	if rc.sensitive {
		t.recorder.Record(ctx, "api_request", rc.path, AuditSuccess, map[string]string{
			"request_id": rc.id,
			"method":     rc.method,
			"status":     strconv.Itoa(resp.StatusCode),
		})
	}

	if readErr != nil {
		return t.fail(rc, networkError(readErr))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return t.fail(rc, &APIError{
				Status:  resp.StatusCode,
				Message: "The server returned an unexpected response.",
				Err:     err,
			})
		}
	}
	return nil
}

// handleUnauthorized implements the 401 recovery flow. Each logical request
// independently attempts at most one refresh-and-replay; refresh itself is
// idempotent and the latest token always wins in the store. Returns
// retry=true when the request should be replayed with fresh credentials;
// every retry=false return carries a non-nil error.
func (t *Transport) handleUnauthorized(ctx context.Context, rc requestContext, alreadyRefreshed bool, respBody []byte) (bool, error) {
	// Anonymous requests (login, refresh itself) treat 401 as a final answer.
	// The server's own message, typically a credential rejection, is the cause.
	if isAnonymous(ctx) {
		return false, t.apiError(http.StatusUnauthorized, false, respBody)
	}

	if alreadyRefreshed {
		t.expireSession(ctx, rc, "refresh_replay_unauthorized")
		return false, t.sessionExpiredError()
	}

	if t.store.RefreshToken() == "" {
		t.expireSession(ctx, rc, "no_refresh_token")
		return false, t.sessionExpiredError()
	}

	if t.refresh == nil {
		t.expireSession(ctx, rc, "refresh_unavailable")
		return false, t.sessionExpiredError()
	}
	if err := t.refresh(ctx); err != nil {
		t.metrics.Inc(MetricTokenRefreshFailure)
		t.expireSession(ctx, rc, "refresh_failed")
		return false, t.sessionExpiredError()
	}
	t.metrics.Inc(MetricTokenRefreshSuccess)
	return true, nil
}

// expireSession clears the store and signals redirect-to-login. The clear
// always happens before the error surfaces, so callers never observe a
// half-valid session.
func (t *Transport) expireSession(ctx context.Context, rc requestContext, reason string) {
	t.recorder.Record(ctx, "session_invalidated", rc.path, AuditFailure, map[string]string{
		"request_id": rc.id,
		"reason":     reason,
	})
	t.store.Clear()
	t.notifier.Notify(Notification{
		Title:       "Session expired",
		Description: "Your session has expired. Please sign in again.",
		Variant:     NotifyDestructive,
	})
}

func (t *Transport) sessionExpiredError() *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: messageForStatus(http.StatusUnauthorized),
		Err:     ErrSessionExpired,
	}
}

func (t *Transport) fail(rc requestContext, err error) error {
	t.metrics.Inc(MetricRequestFailure)
	t.logger.Debug("request failed",
		"request_id", rc.id, "method", rc.method, "path", rc.path, "error", err)
	return err
}

// apiError normalizes a failure response, preferring the server's own
// message as the underlying cause when the body carries one.
func (t *Transport) apiError(status int, retryable bool, respBody []byte) *APIError {
	var cause error
	if msg := serverMessage(respBody); msg != "" {
		cause = errors.New(msg)
	}
	return newAPIError(status, retryable, cause)
}

// backoff sleeps the exponential schedule step for the given retry ordinal:
// base, 2*base, 4*base...
func (t *Transport) backoff(ctx context.Context, retry int) error {
	return t.sleep(ctx, t.cfg.RetryBaseDelay<<uint(retry))
}

// retryAfter reads the Retry-After header in seconds, falling back when the
// header is absent or unparseable.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
