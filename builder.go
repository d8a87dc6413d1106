package authclient

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/givebase/authclient/internal/audit"
	"github.com/givebase/authclient/internal/rate"
	"github.com/givebase/authclient/storage"
	"github.com/givebase/authclient/token"
)

// Builder assembles a [Client]. Configure it during initialization and call
// Build once; a Builder is not safe for concurrent use.
type Builder struct {
	config  Config
	storage storage.Store
	cipher  storage.Cipher
	http    *http.Client
	sink    AuditSink
	notif   Notifier
	logger  *slog.Logger

	built bool
}

// New returns a Builder preloaded with defaults. API.BaseURL must still be
// set before Build.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. Zero-valued tunables are filled from
// defaults during Build, but Audit.Enabled, Metrics.Enabled, and
// Password.MinScore are read literally; start from [DefaultConfig] when
// overriding a subset of fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStorage sets the persistence driver. Defaults to in-memory.
func (b *Builder) WithStorage(store storage.Store) *Builder {
	b.storage = store
	return b
}

// WithCipher enables encryption at rest by wrapping the storage driver.
func (b *Builder) WithCipher(cipher storage.Cipher) *Builder {
	b.cipher = cipher
	return b
}

// WithHTTPClient sets the underlying HTTP client. Defaults to
// http.DefaultClient; per-attempt timeouts come from APIConfig either way.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.http = client
	return b
}

// WithAuditSink adds a sink that receives every audit entry in addition to
// the client's internal ring buffer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithNotifier sets the user-facing notification surface. Defaults to no-op.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notif = n
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Client is the assembled session and transport stack. All fields are safe
// for concurrent use. Construct with [Builder.Build]; tear down with Close.
type Client struct {
	Store     *SecureStore
	Transport *Transport
	Auth      *AuthService
	Devices   *DeviceManager

	metrics    *Metrics
	ring       *audit.RingSink
	dispatcher *auditDispatcher
	flusher    *auditFlusher
}

// Build validates configuration, wires the component graph, restores any
// persisted session, and starts background workers.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := applyDefaults(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := b.notif
	if notifier == nil {
		notifier = NoOpNotifier{}
	}
	httpClient := b.http
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// -------- PERSISTENCE --------
	backing := b.storage
	if backing == nil {
		backing = storage.NewMemory()
	}
	if b.cipher != nil {
		backing = storage.NewEncrypted(backing, b.cipher)
	}

	codec, err := token.NewCodec(cfg.Session.TokenLeeway)
	if err != nil {
		return nil, err
	}

	// -------- AUDIT PIPELINE --------
	ring := audit.NewRingSink(cfg.Audit.RingCapacity)
	var sink AuditSink = ring
	if b.sink != nil {
		sink = audit.NewFanoutSink(ring, b.sink)
	}
	dispatcher := newAuditDispatcher(cfg.Audit, sink)
	recorder := newAuditRecorder(dispatcher)

	// -------- STATE + TRANSPORT --------
	metrics := NewMetrics(cfg.Metrics)
	store := newSecureStore(cfg.Session, backing, codec, recorder, notifier, metrics, logger)
	store.hydrate()

	devices := newDeviceManager(backing, logger)
	limiter := rate.New(rate.Config{
		Window: cfg.RateLimit.Window,
		Budget: cfg.RateLimit.Budget,
	})

	transport := newTransport(cfg.API, httpClient, store, limiter, devices, recorder, metrics, notifier, logger)
	auth := newAuthService(transport, store, devices, recorder, metrics, notifier, logger, cfg.Password, cfg.Lockout, backing)
	transport.refresh = auth.RefreshTokens

	flusher := newAuditFlusher(cfg.Audit, ring, transport, logger)
	flusher.Start()

	b.built = true

	return &Client{
		Store:      store,
		Transport:  transport,
		Auth:       auth,
		Devices:    devices,
		metrics:    metrics,
		ring:       ring,
		dispatcher: dispatcher,
		flusher:    flusher,
	}, nil
}

// MetricsSnapshot returns a point-in-time copy of the client's counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditEntries returns the locally buffered audit entries, oldest first.
func (c *Client) AuditEntries() []AuditEntry {
	return c.ring.Entries()
}

// AuditDropped reports how many audit entries were discarded because the
// dispatch buffer was full.
func (c *Client) AuditDropped() uint64 {
	return c.dispatcher.Dropped()
}

// Close stops background workers and flushes buffered audit entries. Session
// state is left intact; call [SecureStore.Clear] first for a full logout.
func (c *Client) Close() {
	c.flusher.Close()
	c.Store.Close()
	c.dispatcher.Close()
}
