package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/givebase/authclient/storage"
	"github.com/givebase/authclient/token"
)

// Persisted key layout. The SecureStore is the only writer of these keys.
const (
	keyAccessToken  = "auth.access_token"
	keyRefreshToken = "auth.refresh_token"
	keyCSRFToken    = "auth.csrf_token"
	keyUser         = "auth.user"
	keyTenant       = "auth.tenant"
	keySessionInfo  = "auth.session_info"
	keyLastActivity = "auth.last_activity"
)

// SecureStore is the single source of truth for client-side session state.
// Every other component reads through it; none bypass it to touch persistence
// directly. All methods are safe for concurrent use.
//
// State machine: Unauthenticated -> Authenticated on a valid SetTokens;
// Authenticated -> Unauthenticated on Clear, on the background expiry check
// failing, or on the inactivity watchdog firing. MFA-pending is a flag
// layered on Unauthenticated, not a separate state.
type SecureStore struct {
	mu       sync.RWMutex
	cfg      SessionConfig
	storage  storage.Store
	codec    *token.Codec
	recorder *auditRecorder
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger

	user         *User
	tenant       *TenantContext
	accessToken  string
	refreshToken string
	csrfToken    string
	sessionInfo  *SessionInfo
	deviceInfo   *DeviceInfo
	lastActivity time.Time
	mfaPending   bool

	subscribers map[int]func(Session)
	nextSubID   int

	timers *sessionTimers

	now func() time.Time
}

func newSecureStore(cfg SessionConfig, store storage.Store, codec *token.Codec, recorder *auditRecorder, notifier Notifier, metrics *Metrics, logger *slog.Logger) *SecureStore {
	s := &SecureStore{
		cfg:         cfg,
		storage:     store,
		codec:       codec,
		recorder:    recorder,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		subscribers: make(map[int]func(Session)),
		now:         time.Now,
	}
	recorder.bind(s)
	return s
}

// identity satisfies identitySource for audit attribution.
func (s *SecureStore) identity() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var userID, tenantID string
	if s.user != nil {
		userID = s.user.ID
	}
	if s.tenant != nil {
		tenantID = s.tenant.ID
	}
	return userID, tenantID
}

// SetTokens validates the access token's structure and expiry, then replaces
// the stored credentials, derives session metadata from the token's claims,
// persists everything, and notifies subscribers. An empty refresh token keeps
// the one already stored (refresh rotation is optional server-side).
func (s *SecureStore) SetTokens(access, refresh string) error {
	claims, err := s.codec.Validate(access)
	if err != nil {
		s.recorder.Record(context.Background(), "token_set", "session", AuditFailure,
			map[string]string{"reason": err.Error()})
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	s.mu.Lock()
	s.accessToken = access
	if refresh != "" {
		s.refreshToken = refresh
	}

	sessionID := claims.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	info := &SessionInfo{
		SessionID: sessionID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}
	if s.deviceInfo != nil {
		info.DeviceFingerprint = s.deviceInfo.Fingerprint
	}
	s.sessionInfo = info
	s.mfaPending = false
	s.lastActivity = s.now()

	s.persistLocked(keyAccessToken, access)
	if refresh != "" {
		s.persistLocked(keyRefreshToken, refresh)
	}
	s.persistJSONLocked(keySessionInfo, info)
	s.persistLocked(keyLastActivity, strconv.FormatInt(s.lastActivity.UnixMilli(), 10))

	s.startTimersLocked()
	snapshot, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot, listeners)
	s.recorder.Record(context.Background(), "token_set", "session", AuditSuccess,
		map[string]string{"session_id": sessionID})
	return nil
}

// SetUser replaces the current user. Identity and contact fields are required.
func (s *SecureStore) SetUser(user *User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return fmt.Errorf("%w: id and email are required", ErrInvalidUserData)
	}

	s.mu.Lock()
	s.user = user
	s.persistJSONLocked(keyUser, user)
	snapshot, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot, listeners)
	return nil
}

// SetTenant replaces the active tenant context atomically. The inactivity
// watchdog picks up the tenant's session-timeout policy immediately.
func (s *SecureStore) SetTenant(tenant *TenantContext) {
	s.mu.Lock()
	s.tenant = tenant
	if tenant != nil {
		s.persistJSONLocked(keyTenant, tenant)
	} else {
		s.deleteLocked(keyTenant)
	}
	s.pingActivityLocked()
	snapshot, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot, listeners)
}

// SetCSRFToken replaces the anti-forgery token echoed on mutating requests.
func (s *SecureStore) SetCSRFToken(tok string) {
	s.mu.Lock()
	s.csrfToken = tok
	s.persistLocked(keyCSRFToken, tok)
	snapshot, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot, listeners)
}

// SetDevice records the device identity bound to this session.
func (s *SecureStore) SetDevice(info *DeviceInfo) {
	s.mu.Lock()
	s.deviceInfo = info
	if s.sessionInfo != nil && info != nil {
		s.sessionInfo.DeviceFingerprint = info.Fingerprint
		s.persistJSONLocked(keySessionInfo, s.sessionInfo)
	}
	snapshot, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot, listeners)
}

// SetMFAPending flags that a login attempt is waiting on a second factor.
// The flag layers on the unauthenticated state and is never persisted.
func (s *SecureStore) SetMFAPending(pending bool) {
	s.mu.Lock()
	s.mfaPending = pending
	snapshot, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot, listeners)
}

// IsAuthenticated reports whether an access token is present and unexpired at
// call time. The expiry check is lazy: it is evaluated against the token's
// claims on every call, never cached.
func (s *SecureStore) IsAuthenticated() bool {
	s.mu.RLock()
	access := s.accessToken
	s.mu.RUnlock()

	if access == "" {
		return false
	}
	_, err := s.codec.Validate(access)
	return err == nil
}

// AccessToken returns the stored access token, which may be expired; callers
// wanting a validity check use [SecureStore.IsAuthenticated].
func (s *SecureStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the stored refresh token, if any.
func (s *SecureStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// CSRFToken returns the current anti-forgery token, if any.
func (s *SecureStore) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrfToken
}

// User returns the current user, or nil.
func (s *SecureStore) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Tenant returns the active tenant context, or nil.
func (s *SecureStore) Tenant() *TenantContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant
}

// Device returns the bound device identity, or nil.
func (s *SecureStore) Device() *DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceInfo
}

// Snapshot returns a consistent copy of the full session state.
func (s *SecureStore) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, _ := s.snapshotLocked()
	return snapshot
}

// HasPermission reports whether the current user holds a role granting the
// resource/action pair. A "*" resource or action in a grant matches anything.
// Pure lookup; no side effects.
func (s *SecureStore) HasPermission(resource, action string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return false
	}
	for _, role := range s.user.Roles {
		for _, p := range role.Permissions {
			if (p.Resource == resource || p.Resource == "*") &&
				(p.Action == action || p.Action == "*") {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the current user holds any of the named roles.
func (s *SecureStore) HasRole(names ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return false
	}
	for _, role := range s.user.Roles {
		for _, name := range names {
			if role.Name == name {
				return true
			}
		}
	}
	return false
}

// UpdateActivity resets the inactivity clock and reschedules the watchdog.
func (s *SecureStore) UpdateActivity() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.persistLocked(keyLastActivity, strconv.FormatInt(s.lastActivity.UnixMilli(), 10))
	s.pingActivityLocked()
	s.mu.Unlock()
}

// LastActivity returns the time of the most recent registered activity.
func (s *SecureStore) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Subscribe registers a listener invoked synchronously after every state
// mutation with a consistent snapshot. The returned function unsubscribes.
// Listener panics are recovered and logged, never propagated to the mutator.
func (s *SecureStore) Subscribe(listener func(Session)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Clear wipes in-memory state, deletes every persisted auth key, stops
// background timers, and notifies subscribers. Idempotent: repeated calls on
// an already-empty store do nothing.
func (s *SecureStore) Clear() {
	s.clearWithReason("logout", AuditSuccess, "")
}

func (s *SecureStore) clearWithReason(action string, outcome AuditOutcome, notice string) {
	s.mu.Lock()
	if s.emptyLocked() {
		s.mu.Unlock()
		return
	}

	s.user = nil
	s.tenant = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.csrfToken = ""
	s.sessionInfo = nil
	s.lastActivity = time.Time{}
	s.mfaPending = false

	for _, key := range []string{
		keyAccessToken, keyRefreshToken, keyCSRFToken,
		keyUser, keyTenant, keySessionInfo, keyLastActivity,
	} {
		s.deleteLocked(key)
	}

	s.stopTimersLocked()
	snapshot, listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot, listeners)
	s.metrics.Inc(MetricSessionCleared)
	s.recorder.Record(context.Background(), action, "session", outcome, nil)
	if notice != "" {
		s.notifier.Notify(Notification{
			Title:       "Session ended",
			Description: notice,
			Variant:     NotifyWarning,
		})
	}
}

// Close stops background timers without wiping state. Used on client
// shutdown; Clear remains the path for logout.
func (s *SecureStore) Close() {
	s.mu.Lock()
	s.stopTimersLocked()
	s.mu.Unlock()
}

// hydrate restores persisted session state at construction time. An expired
// or unreadable persisted token wipes the stale keys instead of resurrecting
// a half-valid session.
func (s *SecureStore) hydrate() {
	access, err := s.storage.Get(keyAccessToken)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("reading persisted session failed", "error", err)
		}
		return
	}
	if _, err := s.codec.Validate(access); err != nil {
		s.logger.Info("discarding expired persisted session")
		s.wipePersisted()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = access
	if v, err := s.storage.Get(keyRefreshToken); err == nil {
		s.refreshToken = v
	}
	if v, err := s.storage.Get(keyCSRFToken); err == nil {
		s.csrfToken = v
	}
	s.loadJSONLocked(keyUser, &s.user)
	s.loadJSONLocked(keyTenant, &s.tenant)
	s.loadJSONLocked(keySessionInfo, &s.sessionInfo)
	if v, err := s.storage.Get(keyLastActivity); err == nil {
		if ms, parseErr := strconv.ParseInt(v, 10, 64); parseErr == nil {
			s.lastActivity = time.UnixMilli(ms)
		}
	}
	if s.lastActivity.IsZero() {
		s.lastActivity = s.now()
	}
	s.startTimersLocked()
}

func (s *SecureStore) wipePersisted() {
	for _, key := range []string{
		keyAccessToken, keyRefreshToken, keyCSRFToken,
		keyUser, keyTenant, keySessionInfo, keyLastActivity,
	} {
		if err := s.storage.Delete(key); err != nil {
			s.logger.Warn("deleting persisted key failed", "key", key, "error", err)
		}
	}
}

func (s *SecureStore) emptyLocked() bool {
	return s.accessToken == "" && s.refreshToken == "" && s.user == nil &&
		s.tenant == nil && s.csrfToken == "" && s.timers == nil && !s.mfaPending
}

// snapshotLocked builds a consistent Session copy plus the listener list.
// Callers invoke notify after releasing the lock so listeners can read the
// store without deadlocking.
func (s *SecureStore) snapshotLocked() (Session, []func(Session)) {
	authenticated := false
	if s.accessToken != "" {
		if _, err := s.codec.Validate(s.accessToken); err == nil {
			authenticated = true
		}
	}

	snapshot := Session{
		User:            s.user,
		Tenant:          s.tenant,
		AccessToken:     s.accessToken,
		RefreshToken:    s.refreshToken,
		CSRFToken:       s.csrfToken,
		SessionInfo:     s.sessionInfo,
		DeviceInfo:      s.deviceInfo,
		LastActivity:    s.lastActivity,
		IsAuthenticated: authenticated,
		MFAPending:      s.mfaPending,
	}

	listeners := make([]func(Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	return snapshot, listeners
}

func (s *SecureStore) notify(snapshot Session, listeners []func(Session)) {
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("session subscriber panicked", "panic", r)
				}
			}()
			fn(snapshot)
		}()
	}
}

func (s *SecureStore) persistLocked(key, value string) {
	if err := s.storage.Set(key, value); err != nil {
		s.logger.Warn("persisting session key failed", "key", key, "error", err)
	}
}

func (s *SecureStore) persistJSONLocked(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("encoding session key failed", "key", key, "error", err)
		return
	}
	s.persistLocked(key, string(raw))
}

func (s *SecureStore) deleteLocked(key string) {
	if err := s.storage.Delete(key); err != nil {
		s.logger.Warn("deleting session key failed", "key", key, "error", err)
	}
}

func (s *SecureStore) loadJSONLocked(key string, target any) {
	raw, err := s.storage.Get(key)
	if err != nil {
		return
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		s.logger.Warn("decoding persisted key failed", "key", key, "error", err)
	}
}
