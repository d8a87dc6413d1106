package authclient

import (
	"context"
	"fmt"
	"time"
)

type loginRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	MFACode           string `json:"mfa_code,omitempty"`
	DeviceName        string `json:"device_name,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

type sessionResponse struct {
	RequiresMFA  bool           `json:"requires_mfa"`
	Challenge    *MFAChallenge  `json:"challenge,omitempty"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	CSRFToken    string         `json:"csrf_token,omitempty"`
	User         *User          `json:"user,omitempty"`
	Tenant       *TenantContext `json:"tenant,omitempty"`
}

// Login authenticates with the backend. When the account is locked
// client-side the call fails immediately with [ErrAccountLocked] carrying the
// remaining cooldown, without contacting the backend. When the server signals
// that a second factor is required and no code was supplied, the returned
// result carries the challenge and no session is established.
func (a *AuthService) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if remaining, locked := a.lockout.check(creds.Email); locked {
		a.recorder.Record(ctx, "login", "auth", AuditFailure, map[string]string{
			"email":  creds.Email,
			"reason": "account_locked",
		})
		return nil, fmt.Errorf("%w: too many failed attempts, try again in %s",
			ErrAccountLocked, remaining.Round(time.Second))
	}

	payload := loginRequest{
		Email:      creds.Email,
		Password:   creds.Password,
		MFACode:    creds.MFACode,
		DeviceName: creds.DeviceName,
	}
	if payload.DeviceName == "" {
		payload.DeviceName = deviceNameFromContext(ctx)
	}
	if device, _ := a.devices.CurrentDevice(); device != nil {
		payload.DeviceFingerprint = device.Fingerprint
	}

	var resp sessionResponse
	if err := a.transport.Post(WithAnonymous(ctx), "/auth/login", payload, &resp); err != nil {
		if isCredentialRejection(err) {
			if a.lockout.recordFailure(creds.Email) {
				a.metrics.Inc(MetricLockoutTriggered)
				a.notifier.Notify(Notification{
					Title:       "Account temporarily locked",
					Description: "Too many failed sign-in attempts. Please wait before trying again.",
					Variant:     NotifyDestructive,
				})
			}
			a.metrics.Inc(MetricLoginFailure)
			a.recorder.Record(ctx, "login", "auth", AuditFailure, map[string]string{
				"email": creds.Email,
			})
		}
		return nil, err
	}

	if resp.RequiresMFA && creds.MFACode == "" {
		a.store.SetMFAPending(true)
		a.recorder.Record(ctx, "login", "auth", AuditInitiated, map[string]string{
			"email":  creds.Email,
			"reason": "mfa_required",
		})
		return &LoginResult{MFARequired: true, Challenge: resp.Challenge}, nil
	}

	return a.establishSession(ctx, creds.Email, &resp)
}

// VerifyMFALogin consumes a pending MFA challenge. The challenge is single
// use; if it has expired server-side the backend rejects the code and the
// caller must log in again to obtain a new challenge.
func (a *AuthService) VerifyMFALogin(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	payload := struct {
		ChallengeID       string `json:"challenge_id"`
		Code              string `json:"code"`
		DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	}{ChallengeID: challengeID, Code: code}
	if device, _ := a.devices.CurrentDevice(); device != nil {
		payload.DeviceFingerprint = device.Fingerprint
	}

	var resp sessionResponse
	if err := a.transport.Post(WithAnonymous(ctx), "/auth/mfa/verify", payload, &resp); err != nil {
		a.metrics.Inc(MetricLoginFailure)
		a.recorder.Record(ctx, "mfa_verify", "auth", AuditFailure, map[string]string{
			"challenge_id": challengeID,
		})
		return nil, err
	}
	return a.establishSession(ctx, "", &resp)
}

// establishSession commits a successful authentication response to the store.
// User, tenant, and CSRF land before the tokens so subscribers observe the
// fully-populated session the moment IsAuthenticated flips.
func (a *AuthService) establishSession(ctx context.Context, email string, resp *sessionResponse) (*LoginResult, error) {
	if resp.User != nil {
		if err := a.store.SetUser(resp.User); err != nil {
			return nil, err
		}
	}
	if resp.Tenant != nil {
		a.store.SetTenant(resp.Tenant)
	}
	if resp.CSRFToken != "" {
		a.store.SetCSRFToken(resp.CSRFToken)
	}
	if device, _ := a.devices.CurrentDevice(); device != nil {
		a.store.SetDevice(device)
	}

	if err := a.store.SetTokens(resp.AccessToken, resp.RefreshToken); err != nil {
		a.metrics.Inc(MetricLoginFailure)
		return nil, err
	}

	if email != "" {
		a.lockout.resetFor(email)
	}
	a.metrics.Inc(MetricLoginSuccess)
	a.recorder.Record(ctx, "login", "auth", AuditSuccess, nil)
	return &LoginResult{User: a.store.User(), Tenant: a.store.Tenant()}, nil
}

// RefreshTokens exchanges the stored refresh token for new credentials.
// Fails with [ErrNoRefreshToken] when none is stored. A definitive backend
// rejection clears the session before the error surfaces.
func (a *AuthService) RefreshTokens(ctx context.Context) error {
	refresh := a.store.RefreshToken()
	if refresh == "" {
		return ErrNoRefreshToken
	}

	payload := struct {
		RefreshToken      string `json:"refresh_token"`
		DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	}{RefreshToken: refresh}
	if device, _ := a.devices.CurrentDevice(); device != nil {
		payload.DeviceFingerprint = device.Fingerprint
	}

	var resp sessionResponse
	if err := a.transport.Post(WithAnonymous(ctx), "/auth/refresh", payload, &resp); err != nil {
		if isCredentialRejection(err) {
			a.recorder.Record(ctx, "token_refresh", "session", AuditFailure, nil)
			a.store.Clear()
		}
		return err
	}

	if err := a.store.SetTokens(resp.AccessToken, resp.RefreshToken); err != nil {
		a.store.Clear()
		return err
	}
	if resp.CSRFToken != "" {
		a.store.SetCSRFToken(resp.CSRFToken)
	}
	a.recorder.Record(ctx, "token_refresh", "session", AuditSuccess, nil)
	return nil
}

// Logout revokes the session server-side on a best-effort basis, then clears
// all local state. Local clearing happens even when the revoke call fails.
func (a *AuthService) Logout(ctx context.Context) {
	if a.store.IsAuthenticated() {
		if err := a.transport.Post(ctx, "/auth/logout", nil, nil); err != nil {
			a.logger.Warn("server-side logout failed", "error", err)
		}
	}
	a.recorder.Record(ctx, "logout", "auth", AuditSuccess, nil)
	a.store.Clear()
}
