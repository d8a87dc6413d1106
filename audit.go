package authclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/givebase/authclient/internal/audit"
)

// auditDispatcher decouples emitting from recording so that audit logging can
// never block or fail the operation being logged. Entries are handed to the
// sink on a dedicated goroutine; Close drains whatever is still buffered.
type auditDispatcher struct {
	cfg       AuditConfig
	sink      AuditSink
	ch        chan AuditEntry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = audit.NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan AuditEntry, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case entry := <-d.ch:
			d.sink.Emit(context.Background(), entry)
		case <-d.done:
			for {
				select {
				case entry := <-d.ch:
					d.sink.Emit(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) Emit(ctx context.Context, entry AuditEntry) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- entry:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- entry:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// identitySource supplies the current user/tenant for entry attribution.
// Satisfied by *SecureStore; kept narrow so the recorder can be built first.
type identitySource interface {
	identity() (userID, tenantID string)
}

// auditRecorder stamps and dispatches entries. Record never returns an error
// and recovers any panic: audit failures must not alter the outcome of the
// operation being logged.
type auditRecorder struct {
	dispatcher *auditDispatcher
	ids        identitySource

	now func() time.Time
}

func newAuditRecorder(dispatcher *auditDispatcher) *auditRecorder {
	return &auditRecorder{
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

func (r *auditRecorder) bind(ids identitySource) {
	if r != nil {
		r.ids = ids
	}
}

// Record appends an audit entry. Safe on a nil recorder.
func (r *auditRecorder) Record(ctx context.Context, action, resource string, outcome AuditOutcome, details map[string]string) {
	if r == nil || r.dispatcher == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	entry := AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		Timestamp: r.now(),
		Outcome:   outcome,
		Details:   details,
	}
	if r.ids != nil {
		entry.UserID, entry.TenantID = r.ids.identity()
	}
	r.dispatcher.Emit(ctx, entry)
}
