package authclient

import (
	"context"
	"net/url"
)

// Me fetches the current account from the backend and refreshes the cached
// user. Useful after profile changes made outside this client.
func (a *AuthService) Me(ctx context.Context) (*User, error) {
	var user User
	if err := a.transport.Get(ctx, "/users/me", &user); err != nil {
		return nil, err
	}
	if err := a.store.SetUser(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListSessions returns the account's active sessions as reported by the
// backend, including the one this client holds.
func (a *AuthService) ListSessions(ctx context.Context) ([]RemoteSession, error) {
	var out struct {
		Sessions []RemoteSession `json:"sessions"`
	}
	if err := a.transport.Get(ctx, "/auth/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession terminates one remote session by ID. Revoking the current
// session is allowed; the backend will reject the next request and the
// client clears itself through the usual 401 path.
func (a *AuthService) RevokeSession(ctx context.Context, sessionID string) error {
	if err := a.transport.Delete(ctx, "/auth/sessions/"+url.PathEscape(sessionID), nil); err != nil {
		a.recorder.Record(ctx, "session_revoke", "auth", AuditFailure, map[string]string{"session_id": sessionID})
		return err
	}
	a.recorder.Record(ctx, "session_revoke", "auth", AuditSuccess, map[string]string{"session_id": sessionID})
	return nil
}

// RevokeOtherSessions terminates every session except the current one and
// returns how many the backend revoked.
func (a *AuthService) RevokeOtherSessions(ctx context.Context) (int, error) {
	var out struct {
		Revoked int `json:"revoked"`
	}
	if err := a.transport.Post(ctx, "/auth/sessions/revoke-others", nil, &out); err != nil {
		a.recorder.Record(ctx, "session_revoke_others", "auth", AuditFailure, nil)
		return 0, err
	}
	a.recorder.Record(ctx, "session_revoke_others", "auth", AuditSuccess, nil)
	return out.Revoked, nil
}

// ListTrustedDevices returns the devices the backend trusts for this account.
func (a *AuthService) ListTrustedDevices(ctx context.Context) ([]TrustedDevice, error) {
	var out struct {
		Devices []TrustedDevice `json:"devices"`
	}
	if err := a.transport.Get(ctx, "/auth/devices", &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// RemoveTrustedDevice revokes trust for one device. If its fingerprint matches
// the local device record, the local trust flag is cleared as well.
func (a *AuthService) RemoveTrustedDevice(ctx context.Context, device TrustedDevice) error {
	if err := a.transport.Delete(ctx, "/auth/devices/"+url.PathEscape(device.ID), nil); err != nil {
		a.recorder.Record(ctx, "device_revoke", "auth", AuditFailure, map[string]string{"device_id": device.ID})
		return err
	}
	if local, err := a.devices.CurrentDevice(); err == nil && local != nil && local.Fingerprint == device.Fingerprint {
		if err := a.devices.SetTrusted(false); err != nil {
			a.logger.Warn("device revoke: local trust flag not cleared", "error", err)
		}
	}
	a.recorder.Record(ctx, "device_revoke", "auth", AuditSuccess, map[string]string{"device_id": device.ID})
	return nil
}
