package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const strongPassword = "Str0ng!Passw0rd"

// newTestClient assembles a full client against an httptest server. Backoff
// sleeps are stubbed out so failure paths run instantly.
func newTestClient(t *testing.T, handler http.Handler, mutate func(*Config)) (*Client, *captureNotifier) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := defaultConfig()
	cfg.API.BaseURL = server.URL
	if mutate != nil {
		mutate(&cfg)
	}

	notifier := &captureNotifier{}
	client, err := New().
		WithConfig(cfg).
		WithHTTPClient(server.Client()).
		WithNotifier(notifier).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)

	client.Transport.sleep = func(context.Context, time.Duration) error { return nil }
	return client, notifier
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response failed: %v", err)
	}
}

func loginSuccessHandler(t *testing.T, hits *int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		writeJSON(t, w, http.StatusOK, sessionResponse{
			AccessToken:  validTestToken(t),
			RefreshToken: "refresh-1",
			CSRFToken:    "csrf-1",
			User:         &User{ID: "u1", Email: "alice@example.com"},
			Tenant:       &TenantContext{ID: "t1"},
		})
	})
	return mux
}

func TestLoginEstablishesSession(t *testing.T) {
	var hits int
	client, _ := newTestClient(t, loginSuccessHandler(t, &hits), nil)

	result, err := client.Auth.Login(context.Background(), Credentials{
		Email: "alice@example.com", Password: strongPassword,
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.MFARequired {
		t.Fatal("unexpected MFA requirement")
	}
	if result.User == nil || result.User.ID != "u1" {
		t.Fatalf("result user: %+v", result.User)
	}
	if !client.Store.IsAuthenticated() {
		t.Fatal("session not established")
	}
	if client.Store.CSRFToken() != "csrf-1" {
		t.Fatal("csrf token not stored")
	}
	if tenant := client.Store.Tenant(); tenant == nil || tenant.ID != "t1" {
		t.Fatalf("tenant not stored: %+v", tenant)
	}
	if client.metrics.Value(MetricLoginSuccess) != 1 {
		t.Fatal("login success not counted")
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
	})

	client, notifier := newTestClient(t, mux, func(cfg *Config) {
		cfg.Lockout.Threshold = 3
		cfg.Lockout.Window = time.Hour
		cfg.Lockout.Cooldown = 15 * time.Minute
	})

	creds := Credentials{Email: "alice@example.com", Password: "wrong"}
	for i := 0; i < 3; i++ {
		if _, err := client.Auth.Login(context.Background(), creds); err == nil {
			t.Fatalf("attempt %d should fail", i)
		}
	}
	if hits != 3 {
		t.Fatalf("expected 3 backend hits, got %d", hits)
	}

	_, err := client.Auth.Login(context.Background(), creds)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if hits != 3 {
		t.Fatalf("locked attempt must not reach the backend, got %d hits", hits)
	}
	if client.metrics.Value(MetricLockoutTriggered) != 1 {
		t.Fatal("lockout not counted")
	}

	var locked bool
	for _, n := range notifier.all() {
		if n.Variant == NotifyDestructive {
			locked = true
		}
	}
	if !locked {
		t.Fatal("lockout should notify the user")
	}
}

func TestLoginSuccessResetsFailureCount(t *testing.T) {
	var fail bool
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
			return
		}
		writeJSON(t, w, http.StatusOK, sessionResponse{
			AccessToken: validTestToken(t),
			User:        &User{ID: "u1", Email: "alice@example.com"},
		})
	})
	client, _ := newTestClient(t, mux, nil)

	fail = true
	if _, err := client.Auth.Login(context.Background(), Credentials{Email: "alice@example.com"}); err == nil {
		t.Fatal("expected failure")
	}
	if got := client.Auth.lockout.failureCount("alice@example.com"); got != 1 {
		t.Fatalf("failure count = %d, want 1", got)
	}

	fail = false
	if _, err := client.Auth.Login(context.Background(), Credentials{Email: "alice@example.com"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got := client.Auth.lockout.failureCount("alice@example.com"); got != 0 {
		t.Fatalf("failure count after success = %d, want 0", got)
	}
}

func TestNetworkFailureDoesNotCountTowardLockout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	})
	client, _ := newTestClient(t, mux, nil)

	if _, err := client.Auth.Login(context.Background(), Credentials{Email: "alice@example.com"}); err == nil {
		t.Fatal("expected failure")
	}
	if got := client.Auth.lockout.failureCount("alice@example.com"); got != 0 {
		t.Fatalf("server fault counted toward lockout: %d", got)
	}
}

func TestLoginMFARequired(t *testing.T) {
	challenge := &MFAChallenge{
		ChallengeID:       "ch1",
		Type:              MFATypeTOTP,
		MaskedDestination: "authenticator app",
		ExpiresAt:         time.Now().Add(5 * time.Minute),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, sessionResponse{RequiresMFA: true, Challenge: challenge})
	})
	mux.HandleFunc("/auth/mfa/verify", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			ChallengeID string `json:"challenge_id"`
			Code        string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ChallengeID != "ch1" {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "unknown challenge"})
			return
		}
		writeJSON(t, w, http.StatusOK, sessionResponse{
			AccessToken: validTestToken(t),
			User:        &User{ID: "u1", Email: "alice@example.com"},
		})
	})
	client, _ := newTestClient(t, mux, nil)

	result, err := client.Auth.Login(context.Background(), Credentials{Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MFARequired || result.Challenge == nil || result.Challenge.ChallengeID != "ch1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if client.Store.IsAuthenticated() {
		t.Fatal("no session may exist before MFA verification")
	}
	if !client.Store.Snapshot().MFAPending {
		t.Fatal("mfa pending flag not set")
	}

	verified, err := client.Auth.VerifyMFALogin(context.Background(), "ch1", "123456")
	if err != nil {
		t.Fatalf("VerifyMFALogin failed: %v", err)
	}
	if verified.User == nil || verified.User.ID != "u1" {
		t.Fatalf("verified user: %+v", verified.User)
	}
	if !client.Store.IsAuthenticated() {
		t.Fatal("session not established after verification")
	}
	if client.Store.Snapshot().MFAPending {
		t.Fatal("mfa pending flag must clear on token set")
	}
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { hits++ })
	client, _ := newTestClient(t, mux, nil)

	_, err := client.Auth.Signup(context.Background(), SignupRequest{
		Email: "alice@example.com", Password: "password123", Name: "Alice",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if hits != 0 {
		t.Fatal("weak password must be rejected before any network call")
	}
}

func TestSignupRejectsDisposableEmail(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { hits++ })
	client, _ := newTestClient(t, mux, nil)

	_, err := client.Auth.Signup(context.Background(), SignupRequest{
		Email: "alice@mailinator.com", Password: strongPassword, Name: "Alice",
	})
	if !errors.Is(err, ErrDisposableEmail) {
		t.Fatalf("expected ErrDisposableEmail, got %v", err)
	}
	if hits != 0 {
		t.Fatal("disposable email must be rejected before any network call")
	}
}

func TestSignupAutoLoginWhenTokensIssued(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusCreated, sessionResponse{
			AccessToken: validTestToken(t),
			User:        &User{ID: "u1", Email: "alice@example.com"},
		})
	})
	client, _ := newTestClient(t, mux, nil)

	result, err := client.Auth.Signup(context.Background(), SignupRequest{
		Email: "alice@example.com", Password: strongPassword, Name: "Alice",
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.User == nil || !client.Store.IsAuthenticated() {
		t.Fatal("signup with issued credentials should establish a session")
	}
}

func TestRefreshTokensRequiresStoredToken(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux(), nil)

	if err := client.Auth.RefreshTokens(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestRefreshRejectionClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "refresh token revoked"})
	})
	client, _ := newTestClient(t, mux, nil)

	if err := client.Store.SetTokens(validTestToken(t), "refresh-1"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	if err := client.Auth.RefreshTokens(context.Background()); err == nil {
		t.Fatal("expected refresh rejection")
	}
	if client.Store.IsAuthenticated() || client.Store.RefreshToken() != "" {
		t.Fatal("definitive rejection must clear the session")
	}
}

func TestRefreshRotatesCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.RefreshToken != "refresh-1" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "unknown token"})
			return
		}
		writeJSON(t, w, http.StatusOK, sessionResponse{
			AccessToken:  validTestToken(t),
			RefreshToken: "refresh-2",
			CSRFToken:    "csrf-2",
		})
	})
	client, _ := newTestClient(t, mux, nil)

	if err := client.Store.SetTokens(validTestToken(t), "refresh-1"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}
	if err := client.Auth.RefreshTokens(context.Background()); err != nil {
		t.Fatalf("RefreshTokens failed: %v", err)
	}
	if client.Store.RefreshToken() != "refresh-2" {
		t.Fatal("refresh token not rotated")
	}
	if client.Store.CSRFToken() != "csrf-2" {
		t.Fatal("csrf token not rotated")
	}
}

func TestLogoutClearsDespiteServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	})
	client, _ := newTestClient(t, mux, nil)

	if err := client.Store.SetTokens(validTestToken(t), "refresh-1"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	client.Auth.Logout(context.Background())
	if client.Store.IsAuthenticated() || client.Store.AccessToken() != "" {
		t.Fatal("logout must clear local state even when the revoke call fails")
	}
}

func TestChangePasswordEnforcesPolicy(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { hits++ })
	client, _ := newTestClient(t, mux, nil)

	err := client.Auth.ChangePassword(context.Background(), "old", "weak")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if hits != 0 {
		t.Fatal("weak replacement must be rejected locally")
	}
}

func TestListSessionsAndRevoke(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"sessions": []RemoteSession{
				{ID: "s1", Current: true},
				{ID: "s2", DeviceName: "old laptop"},
			},
		})
	})
	var revoked string
	mux.HandleFunc("/auth/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		revoked = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	client, _ := newTestClient(t, mux, nil)

	sessions, err := client.Auth.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 || !sessions[0].Current {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	if err := client.Auth.RevokeSession(context.Background(), "s2"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked != "/auth/sessions/s2" {
		t.Fatalf("revoked path = %q", revoked)
	}
}

func TestMeRefreshesCachedUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, User{ID: "u1", Email: "alice@example.com", Name: "Alice Renamed"})
	})
	client, _ := newTestClient(t, mux, nil)

	user, err := client.Auth.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if user.Name != "Alice Renamed" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if cached := client.Store.User(); cached == nil || cached.Name != "Alice Renamed" {
		t.Fatal("cached user not refreshed")
	}
}

func TestTOTPHelpersRoundTrip(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"

	code, err := GenerateTOTPCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateTOTPCode failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d", len(code))
	}
	if !ValidateTOTPCode(secret, code) {
		t.Fatal("freshly generated code should validate")
	}
}
