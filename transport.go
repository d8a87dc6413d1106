package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/givebase/authclient/internal/rate"
)

// Security header names attached to every outbound request.
const (
	headerRequestID     = "X-Request-ID"
	headerClientVersion = "X-Client-Version"
	headerFingerprint   = "X-Device-Fingerprint"
	headerTenantID      = "X-Tenant-ID"
	headerCSRF          = "X-CSRF-Token"
)

// sensitivePathFragments classify targets whose calls are audited.
var sensitivePathFragments = []string{"/auth", "/users", "/admin", "/payments", "/withdrawals"}

// Transport wraps outbound HTTP calls with request enrichment, response
// classification, retry/backoff, and 401/429 recovery. Every call the SDK
// makes passes through [Transport.Do].
type Transport struct {
	cfg      APIConfig
	http     *http.Client
	store    *SecureStore
	limiter  *rate.Limiter
	devices  *DeviceManager
	recorder *auditRecorder
	metrics  *Metrics
	notifier Notifier
	logger   *slog.Logger

	// refresh exchanges the stored refresh token for new credentials. Wired
	// to [AuthService.RefreshTokens] after construction to avoid a cycle.
	refresh func(ctx context.Context) error

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newTransport(cfg APIConfig, httpClient *http.Client, store *SecureStore, limiter *rate.Limiter, devices *DeviceManager, recorder *auditRecorder, metrics *Metrics, notifier Notifier, logger *slog.Logger) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Transport{
		cfg:      cfg,
		http:     httpClient,
		store:    store,
		limiter:  limiter,
		devices:  devices,
		recorder: recorder,
		metrics:  metrics,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// requestContext carries the immutable identity of one logical request.
// Retry state is explicit values threaded through the dispatch loop, never
// mutable flags on a shared request object.
type requestContext struct {
	id        string
	method    string
	path      string
	sensitive bool
	startedAt time.Time
}

// Get issues a GET request and decodes the JSON response into out.
func (t *Transport) Get(ctx context.Context, path string, out any) error {
	return t.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with a JSON body.
func (t *Transport) Post(ctx context.Context, path string, body, out any) error {
	return t.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT request with a JSON body.
func (t *Transport) Put(ctx context.Context, path string, body, out any) error {
	return t.Do(ctx, http.MethodPut, path, body, out)
}

// Patch issues a PATCH request with a JSON body.
func (t *Transport) Patch(ctx context.Context, path string, body, out any) error {
	return t.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete issues a DELETE request.
func (t *Transport) Delete(ctx context.Context, path string, out any) error {
	return t.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do runs the full enrichment -> dispatch -> classification pipeline for one
// logical request. All failures surface as a normalized [*APIError] or one of
// the package sentinel errors; callers never see the raw transport error.
func (t *Transport) Do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var bodyBytes []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		bodyBytes = raw
	}

	system := isSystem(ctx)
	rc := requestContext{
		id:        uuid.NewString(),
		method:    method,
		path:      path,
		sensitive: !system && t.sensitiveTarget(method, path),
		startedAt: t.now(),
	}

	if err := t.limiter.Check(t.rateKey(path)); err != nil {
		t.metrics.Inc(MetricRateLimitHit)
		if !system {
			t.recorder.Record(ctx, "rate_limited", path, AuditFailure, map[string]string{"request_id": rc.id})
		}
		return fmt.Errorf("%w: call budget for %s exhausted, wait for the window to reset", ErrRateLimitExceeded, path)
	}

	if !system {
		t.store.UpdateActivity()
	}

	if rc.sensitive {
		t.recorder.Record(ctx, "api_request", path, AuditInitiated, map[string]string{
			"request_id": rc.id,
			"method":     method,
		})
	}

	return t.dispatch(ctx, rc, bodyBytes, out)
}

// rateKey scopes the call budget per (tenant, user, endpoint).
func (t *Transport) rateKey(path string) string {
	tenantID := "-"
	userID := "-"
	if tenant := t.store.Tenant(); tenant != nil {
		tenantID = tenant.ID
	}
	if user := t.store.User(); user != nil {
		userID = user.ID
	}
	return tenantID + ":" + userID + ":" + path
}

func (t *Transport) sensitiveTarget(method, path string) bool {
	if mutating(method) {
		return true
	}
	for _, fragment := range sensitivePathFragments {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// idempotent methods are safe to replay on 5xx and network failures.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// roundTrip performs a single enriched HTTP attempt.
func (t *Transport) roundTrip(ctx context.Context, rc requestContext, bodyBytes []byte) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)

	var reader *bytes.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(attemptCtx, rc.method, t.cfg.BaseURL+rc.path, reader)
	if err != nil {
		cancel()
		return nil, err
	}

	req.Header.Set(headerRequestID, rc.id)
	if t.cfg.ClientVersion != "" {
		req.Header.Set(headerClientVersion, t.cfg.ClientVersion)
	}
	if device, _ := t.devices.CurrentDevice(); device != nil {
		req.Header.Set(headerFingerprint, device.Fingerprint)
	}
	if tenant := t.store.Tenant(); tenant != nil {
		req.Header.Set(headerTenantID, tenant.ID)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if mutating(rc.method) {
		if csrf := t.store.CSRFToken(); csrf != "" {
			req.Header.Set(headerCSRF, csrf)
		}
	}
	if !isAnonymous(ctx) {
		if access := t.store.AccessToken(); access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
	}

	resp, err := t.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// The body is small JSON; cancel fires once the dispatcher closes it.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serverMessage pulls a human-readable message out of an error response body.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
