package authclient

import (
	"context"
	"time"

	"github.com/pquerna/otp/totp"
)

// SetupMFA begins TOTP enrollment for the authenticated account. The returned
// setup holds the shared secret and provisioning URL; the factor is not active
// until [AuthService.VerifyMFASetup] confirms a valid code.
func (a *AuthService) SetupMFA(ctx context.Context) (*MFASetup, error) {
	var setup MFASetup
	if err := a.transport.Post(ctx, "/auth/mfa/setup", nil, &setup); err != nil {
		a.recorder.Record(ctx, "mfa_setup", "auth", AuditFailure, nil)
		return nil, err
	}
	a.recorder.Record(ctx, "mfa_setup", "auth", AuditInitiated, nil)
	return &setup, nil
}

// VerifyMFASetup confirms enrollment with a code generated from the secret
// returned by SetupMFA. On success MFA is enabled on the account and the
// cached user is updated.
func (a *AuthService) VerifyMFASetup(ctx context.Context, code string) error {
	payload := struct {
		Code string `json:"code"`
	}{Code: code}

	if err := a.transport.Post(ctx, "/auth/mfa/enable", payload, nil); err != nil {
		a.recorder.Record(ctx, "mfa_enable", "auth", AuditFailure, nil)
		return err
	}
	if u := a.store.User(); u != nil {
		updated := *u
		updated.MFAEnabled = true
		if err := a.store.SetUser(&updated); err != nil {
			a.logger.Warn("mfa enable: user update failed", "error", err)
		}
	}
	a.recorder.Record(ctx, "mfa_enable", "auth", AuditSuccess, nil)
	return nil
}

// DisableMFA turns the second factor off. The backend requires a current code
// so a stolen session alone cannot weaken the account.
func (a *AuthService) DisableMFA(ctx context.Context, code string) error {
	payload := struct {
		Code string `json:"code"`
	}{Code: code}

	if err := a.transport.Post(ctx, "/auth/mfa/disable", payload, nil); err != nil {
		a.recorder.Record(ctx, "mfa_disable", "auth", AuditFailure, nil)
		return err
	}
	if u := a.store.User(); u != nil {
		updated := *u
		updated.MFAEnabled = false
		if err := a.store.SetUser(&updated); err != nil {
			a.logger.Warn("mfa disable: user update failed", "error", err)
		}
	}
	a.recorder.Record(ctx, "mfa_disable", "auth", AuditSuccess, nil)
	return nil
}

// GenerateTOTPCode derives the 6-digit code for secret at the given instant.
// Intended for enrollment tooling and tests; production codes come from the
// user's authenticator app.
func GenerateTOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCode(secret, at)
}

// ValidateTOTPCode reports whether code is currently valid for secret.
func ValidateTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
