package authclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/givebase/authclient/internal/audit"
)

// auditFlusher ships buffered audit entries to the remote collector in
// batches. Flushing is best effort: a failed batch is requeued and retried on
// the next tick. The limiter paces flushes so a large backlog cannot flood
// the collector endpoint.
type auditFlusher struct {
	cfg       AuditConfig
	ring      *audit.RingSink
	transport *Transport
	logger    *slog.Logger
	limiter   *rate.Limiter

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

func newAuditFlusher(cfg AuditConfig, ring *audit.RingSink, transport *Transport, logger *slog.Logger) *auditFlusher {
	if cfg.CollectorPath == "" || ring == nil || transport == nil {
		return nil
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.FlushBatchSize <= 0 {
		cfg.FlushBatchSize = 25
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &auditFlusher{
		cfg:       cfg,
		ring:      ring,
		transport: transport,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Every(cfg.FlushInterval), 1),
		done:      make(chan struct{}),
	}
}

// Start launches the flush loop. Safe on a nil flusher and idempotent.
func (f *auditFlusher) Start() {
	if f == nil {
		return
	}
	f.startOnce.Do(func() {
		f.wg.Add(1)
		go f.run()
	})
}

func (f *auditFlusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flushOnce(context.Background(), false)
		case <-f.done:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.flushOnce(ctx, true)
			cancel()
			return
		}
	}
}

// flushOnce ships at most one batch. Entries come back via Requeue on any
// failure so nothing is lost short of ring eviction. force skips pacing and
// is used for the final flush on Close.
func (f *auditFlusher) flushOnce(ctx context.Context, force bool) {
	if !force && !f.limiter.Allow() {
		return
	}

	batch := f.ring.Drain(f.cfg.FlushBatchSize)
	if len(batch) == 0 {
		return
	}

	payload := struct {
		Entries []AuditEntry `json:"entries"`
	}{Entries: batch}

	if err := f.transport.Post(withSystem(WithAnonymous(ctx)), f.cfg.CollectorPath, payload, nil); err != nil {
		f.ring.Requeue(batch)
		f.logger.Debug("audit flush failed", "entries", len(batch), "error", err)
		return
	}
	f.logger.Debug("audit flush", "entries", len(batch))
}

// Close stops the loop after a final best-effort flush. Safe on nil.
func (f *auditFlusher) Close() {
	if f == nil {
		return
	}
	f.closeOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
	})
}
