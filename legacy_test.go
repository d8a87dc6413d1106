package authclient

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/givebase/authclient/storage"
)

func seedLegacyState(t *testing.T, mem *storage.Memory, access string) {
	t.Helper()

	if err := mem.Set(legacyTokenKey, access); err != nil {
		t.Fatalf("seeding legacy token failed: %v", err)
	}
	if err := mem.Set(legacyRefreshTokenKey, "legacy-refresh"); err != nil {
		t.Fatalf("seeding legacy refresh failed: %v", err)
	}
	raw, err := json.Marshal(User{ID: "u1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("encoding legacy user failed: %v", err)
	}
	if err := mem.Set(legacyUserKey, string(raw)); err != nil {
		t.Fatalf("seeding legacy user failed: %v", err)
	}
}

func assertLegacyKeysGone(t *testing.T, mem *storage.Memory) {
	t.Helper()

	for _, key := range []string{legacyTokenKey, legacyRefreshTokenKey, legacyUserKey} {
		if _, err := mem.Get(key); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("legacy key %q still present", key)
		}
	}
}

func TestLegacyMigrationCarriesValidSession(t *testing.T) {
	store, mem, _ := newTestStore(t, testSessionConfig())
	seedLegacyState(t, mem, validTestToken(t))

	adapter := NewLegacyStoreAdapter(store, mem)

	if adapter.GetToken() == "" {
		t.Fatal("legacy token not migrated")
	}
	if !store.IsAuthenticated() {
		t.Fatal("migrated session should be authenticated")
	}
	if store.RefreshToken() != "legacy-refresh" {
		t.Fatal("legacy refresh token not migrated")
	}
	if user := adapter.GetUser(); user == nil || user.ID != "u1" {
		t.Fatalf("legacy user not migrated: %+v", user)
	}
	assertLegacyKeysGone(t, mem)
}

func TestLegacyMigrationDiscardsExpiredToken(t *testing.T) {
	store, mem, _ := newTestStore(t, testSessionConfig())
	seedLegacyState(t, mem, signTestToken(t, testClaims(time.Now().Add(-time.Hour))))

	adapter := NewLegacyStoreAdapter(store, mem)

	if adapter.GetToken() != "" || store.IsAuthenticated() {
		t.Fatal("expired legacy token must not be carried over")
	}
	assertLegacyKeysGone(t, mem)
}

func TestLegacyMigrationSkippedWhenAuthenticated(t *testing.T) {
	store, mem, _ := newTestStore(t, testSessionConfig())

	current := validTestToken(t)
	if err := store.SetTokens(current, "current-refresh"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	seedLegacyState(t, mem, signTestToken(t, testClaims(time.Now().Add(2*time.Hour))))

	NewLegacyStoreAdapter(store, mem)

	if store.AccessToken() != current || store.RefreshToken() != "current-refresh" {
		t.Fatal("migration must not replace a live session")
	}
	assertLegacyKeysGone(t, mem)
}

func TestLegacyAdapterSurface(t *testing.T) {
	store, mem, _ := newTestStore(t, testSessionConfig())
	adapter := NewLegacyStoreAdapter(store, mem)

	if err := adapter.SetToken("garbage"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("SetToken must validate like SetTokens, got %v", err)
	}
	if err := adapter.SetToken(validTestToken(t)); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	if !store.IsAuthenticated() {
		t.Fatal("both surfaces must observe the same state")
	}

	adapter.ClearAuth()
	if adapter.GetToken() != "" || store.IsAuthenticated() {
		t.Fatal("ClearAuth must wipe the shared session")
	}
}
