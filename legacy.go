package authclient

import (
	"encoding/json"

	"github.com/givebase/authclient/storage"
)

// Keys used by the previous generation of the auth store. Migrated once into
// the current layout, then removed.
const (
	legacyTokenKey        = "auth_token"
	legacyRefreshTokenKey = "refresh_token"
	legacyUserKey         = "current_user"
)

// LegacyStore is the minimal surface the old store exposed. Callers still on
// it keep working against a [LegacyStoreAdapter] while they migrate to
// [SecureStore] directly.
type LegacyStore interface {
	GetToken() string
	SetToken(token string) error
	GetUser() *User
	ClearAuth()
}

var _ LegacyStore = (*LegacyStoreAdapter)(nil)

// LegacyStoreAdapter bridges the old store surface onto a SecureStore. Both
// surfaces observe the same state, so incremental migration is safe.
type LegacyStoreAdapter struct {
	store   *SecureStore
	storage storage.Store
}

// NewLegacyStoreAdapter wraps store and migrates any state persisted under the
// old key layout. Migration runs once; old keys are deleted afterwards whether
// the carried-over credential was still valid or not.
func NewLegacyStoreAdapter(store *SecureStore, backing storage.Store) *LegacyStoreAdapter {
	a := &LegacyStoreAdapter{store: store, storage: backing}
	a.migrate()
	return a
}

// GetToken returns the current access token, empty when unauthenticated.
func (a *LegacyStoreAdapter) GetToken() string {
	return a.store.AccessToken()
}

// SetToken stores an access token without a refresh counterpart, matching the
// old store's behavior. The token is validated the same way SetTokens does.
func (a *LegacyStoreAdapter) SetToken(token string) error {
	return a.store.SetTokens(token, "")
}

// GetUser returns the cached user, nil when unauthenticated.
func (a *LegacyStoreAdapter) GetUser() *User {
	return a.store.User()
}

// ClearAuth wipes the session. Equivalent to [SecureStore.Clear].
func (a *LegacyStoreAdapter) ClearAuth() {
	a.store.Clear()
}

// migrate carries persisted legacy state into the current store. An expired
// or malformed legacy token is discarded rather than surfaced; the user ends
// up logged out, which is what the old store did on bad state too.
func (a *LegacyStoreAdapter) migrate() {
	if a.storage == nil {
		return
	}
	if a.store.IsAuthenticated() {
		a.cleanupLegacyKeys()
		return
	}

	access, err := a.storage.Get(legacyTokenKey)
	if err != nil || access == "" {
		a.cleanupLegacyKeys()
		return
	}
	refresh, _ := a.storage.Get(legacyRefreshTokenKey)

	if err := a.store.SetTokens(access, refresh); err == nil {
		if raw, err := a.storage.Get(legacyUserKey); err == nil && raw != "" {
			var user User
			if json.Unmarshal([]byte(raw), &user) == nil {
				_ = a.store.SetUser(&user)
			}
		}
	}
	a.cleanupLegacyKeys()
}

func (a *LegacyStoreAdapter) cleanupLegacyKeys() {
	_ = a.storage.Delete(legacyTokenKey)
	_ = a.storage.Delete(legacyRefreshTokenKey)
	_ = a.storage.Delete(legacyUserKey)
}
