package authclient

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/givebase/authclient/storage"
)

// AuthService encodes the login, signup, password, and MFA business rules on
// top of the [Transport] and [SecureStore].
type AuthService struct {
	transport *Transport
	store     *SecureStore
	devices   *DeviceManager
	recorder  *auditRecorder
	metrics   *Metrics
	notifier  Notifier
	logger    *slog.Logger
	password  PasswordConfig
	lockout   *lockoutGuard
}

func newAuthService(transport *Transport, store *SecureStore, devices *DeviceManager, recorder *auditRecorder, metrics *Metrics, notifier Notifier, logger *slog.Logger, passwordCfg PasswordConfig, lockoutCfg LockoutConfig, storageStore storage.Store) *AuthService {
	return &AuthService{
		transport: transport,
		store:     store,
		devices:   devices,
		recorder:  recorder,
		metrics:   metrics,
		notifier:  notifier,
		logger:    logger,
		password:  passwordCfg,
		lockout:   newLockoutGuard(lockoutCfg, storageStore, logger),
	}
}

const lockoutKeyPrefix = "auth.lockout:"

// lockoutRecord is the persisted failed-attempt state for one account.
type lockoutRecord struct {
	Count       int       `json:"count"`
	FirstAt     time.Time `json:"first_at"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// lockoutGuard is the client-side account lockout: a UX guard that reports
// remaining cooldown instead of a generic failure. It lives in client
// storage and is trivially bypassed; authoritative lockout is server-side.
//
// State machine: Unlocked -> Locked when the failure count reaches the
// threshold inside the rolling window; Locked -> Unlocked automatically once
// the cooldown elapses, which also resets the counter.
type lockoutGuard struct {
	mu      sync.Mutex
	cfg     LockoutConfig
	storage storage.Store
	logger  *slog.Logger

	now func() time.Time
}

func newLockoutGuard(cfg LockoutConfig, store storage.Store, logger *slog.Logger) *lockoutGuard {
	return &lockoutGuard{
		cfg:     cfg,
		storage: store,
		logger:  logger,
		now:     time.Now,
	}
}

func lockoutKey(email string) string {
	return lockoutKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

func (g *lockoutGuard) load(email string) lockoutRecord {
	raw, err := g.storage.Get(lockoutKey(email))
	if err != nil {
		return lockoutRecord{}
	}
	var rec lockoutRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return lockoutRecord{}
	}
	return rec
}

func (g *lockoutGuard) save(email string, rec lockoutRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := g.storage.Set(lockoutKey(email), string(raw)); err != nil {
		g.logger.Warn("persisting lockout state failed", "error", err)
	}
}

// check returns the remaining cooldown when the account is locked. An
// elapsed cooldown unlocks the account and resets the counter.
func (g *lockoutGuard) check(email string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec := g.load(email)
	now := g.now()
	if !rec.LockedUntil.IsZero() {
		if now.Before(rec.LockedUntil) {
			return rec.LockedUntil.Sub(now), true
		}
		// Cooldown elapsed: unlock and reset.
		g.reset(email)
	}
	return 0, false
}

// recordFailure counts a failed attempt inside the rolling window and
// returns true when the threshold is reached and the lock engages.
func (g *lockoutGuard) recordFailure(email string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	rec := g.load(email)
	if rec.FirstAt.IsZero() || now.Sub(rec.FirstAt) > g.cfg.Window {
		rec = lockoutRecord{FirstAt: now}
	}
	rec.Count++
	locked := false
	if rec.Count >= g.cfg.Threshold {
		rec.LockedUntil = now.Add(g.cfg.Cooldown)
		locked = true
	}
	g.save(email, rec)
	return locked
}

func (g *lockoutGuard) resetFor(email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset(email)
}

func (g *lockoutGuard) reset(email string) {
	if err := g.storage.Delete(lockoutKey(email)); err != nil {
		g.logger.Warn("clearing lockout state failed", "error", err)
	}
}

// failureCount reports the current failed-attempt count for an account.
func (g *lockoutGuard) failureCount(email string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec := g.load(email)
	if rec.FirstAt.IsZero() || g.now().Sub(rec.FirstAt) > g.cfg.Window {
		return 0
	}
	return rec.Count
}

// isCredentialRejection reports whether err is a backend "wrong credentials"
// class failure, the only kind that counts toward lockout. Network errors
// and server faults never lock an account.
func isCredentialRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case 400, 401, 422:
		return true
	}
	return false
}
