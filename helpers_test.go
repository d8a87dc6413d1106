package authclient

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/givebase/authclient/storage"
	"github.com/givebase/authclient/token"
)

// signTestToken builds a structurally valid bearer token. The signature is
// irrelevant client-side; the codec parses without verification.
func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token failed: %v", err)
	}
	return raw
}

func testClaims(exp time.Time) jwt.MapClaims {
	// exp is encoded in whole seconds (jwt truncates to jwt.TimePrecision on
	// parse), so round sub-second expiries up: truncating would hand out
	// already-expired tokens for short lifetimes like 150ms.
	expSec := exp.Unix()
	if exp.Nanosecond() > 0 {
		expSec++
	}
	return jwt.MapClaims{
		"sub":       "u1",
		"sid":       "s1",
		"tenant_id": "t1",
		"email":     "alice@example.com",
		"iat":       time.Now().Add(-time.Minute).Unix(),
		"exp":       expSec,
	}
}

func validTestToken(t *testing.T) string {
	t.Helper()
	return signTestToken(t, testClaims(time.Now().Add(time.Hour)))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEntry) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	entries chan AuditEntry
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		entries: make(chan AuditEntry, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, entry AuditEntry) {
	select {
	case s.entries <- entry:
	case <-ctx.Done():
	}
}

func (s *captureSink) wait(t *testing.T) AuditEntry {
	t.Helper()

	select {
	case entry := <-s.entries:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit entry")
		return AuditEntry{}
	}
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEntry) {
	<-s.gate
}

// captureNotifier records user-facing notifications.
type captureNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (n *captureNotifier) Notify(notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

func (n *captureNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.notifications))
	copy(out, n.notifications)
	return out
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		ExpiryCheckInterval: time.Minute,
		InactivityTimeout:   30 * time.Minute,
		TokenLeeway:         0,
	}
}

// newTestStore builds a SecureStore on in-memory storage with an inert audit
// recorder. Callers needing audit assertions build their own recorder.
func newTestStore(t *testing.T, cfg SessionConfig) (*SecureStore, *storage.Memory, *captureNotifier) {
	t.Helper()

	mem := storage.NewMemory()
	codec, err := token.NewCodec(cfg.TokenLeeway)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	notifier := &captureNotifier{}
	metrics := NewMetrics(MetricsConfig{Enabled: true})
	store := newSecureStore(cfg, mem, codec, newAuditRecorder(nil), notifier, metrics, discardLogger())
	t.Cleanup(store.Close)
	return store, mem, notifier
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
