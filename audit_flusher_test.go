package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/givebase/authclient/internal/audit"
)

func TestFlusherShipsBatchesToCollector(t *testing.T) {
	var mu sync.Mutex
	var received []AuditEntry
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Entries []AuditEntry `json:"entries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, payload.Entries...)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})

	fx := newTestTransport(t, handler, nil)
	ring := audit.NewRingSink(100)
	for i := 0; i < 3; i++ {
		ring.Emit(context.Background(), AuditEntry{ID: "e", Action: "login"})
	}

	cfg := AuditConfig{
		Enabled:        true,
		RingCapacity:   100,
		CollectorPath:  "/audit/events",
		FlushInterval:  20 * time.Millisecond,
		FlushBatchSize: 10,
	}
	flusher := newAuditFlusher(cfg, ring, fx.transport, discardLogger())
	flusher.Start()
	t.Cleanup(flusher.Close)

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	})
	if ring.Len() != 0 {
		t.Fatalf("ring not drained: %d entries left", ring.Len())
	}
}

func TestFlusherTrafficDoesNotDeferInactivityTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	cfg := defaultConfig()
	cfg.API.BaseURL = server.URL
	cfg.Session.ExpiryCheckInterval = 10 * time.Second
	cfg.Session.InactivityTimeout = 80 * time.Millisecond
	cfg.Audit.CollectorPath = "/audit/events"
	cfg.Audit.FlushInterval = 15 * time.Millisecond

	client, err := New().
		WithConfig(cfg).
		WithHTTPClient(server.Client()).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)

	// The token_set entry keeps the ring non-empty, so flushes actually fire
	// while the session sits idle.
	if err := client.Store.SetTokens(validTestToken(t), "r1"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return !client.Store.IsAuthenticated() })
}

func TestFlusherRequeuesOnFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	fx := newTestTransport(t, handler, nil)
	ring := audit.NewRingSink(100)
	ring.Emit(context.Background(), AuditEntry{ID: "e1", Action: "login"})

	cfg := AuditConfig{
		Enabled:        true,
		RingCapacity:   100,
		CollectorPath:  "/audit/events",
		FlushInterval:  time.Hour,
		FlushBatchSize: 10,
	}
	flusher := newAuditFlusher(cfg, ring, fx.transport, discardLogger())

	flusher.flushOnce(context.Background(), true)

	if ring.Len() != 1 {
		t.Fatalf("failed batch not requeued: %d entries", ring.Len())
	}
}

func TestFlusherDisabledWithoutCollector(t *testing.T) {
	if f := newAuditFlusher(AuditConfig{Enabled: true}, audit.NewRingSink(10), nil, nil); f != nil {
		t.Fatal("flusher without transport must be nil")
	}

	var f *auditFlusher
	f.Start()
	f.Close()
}
