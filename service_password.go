package authclient

import "context"

// ChangePassword updates the authenticated account's password. The new
// password is re-validated against the strength policy before the call.
func (a *AuthService) ChangePassword(ctx context.Context, current, next string) error {
	if err := a.checkPasswordPolicy(next); err != nil {
		return err
	}

	payload := struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}{CurrentPassword: current, NewPassword: next}

	if err := a.transport.Post(ctx, "/users/password", payload, nil); err != nil {
		a.recorder.Record(ctx, "password_change", "users", AuditFailure, nil)
		return err
	}
	a.recorder.Record(ctx, "password_change", "users", AuditSuccess, nil)
	return nil
}

// RequestPasswordReset asks the backend to start a reset flow for email.
// The response is intentionally indistinguishable for unknown accounts.
func (a *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	payload := struct {
		Email string `json:"email"`
	}{Email: email}
	return a.transport.Post(WithAnonymous(ctx), "/auth/password-reset", payload, nil)
}

// ConfirmPasswordReset completes a reset flow with the emailed token. The new
// password is validated locally before the call.
func (a *AuthService) ConfirmPasswordReset(ctx context.Context, resetToken, next string) error {
	if err := a.checkPasswordPolicy(next); err != nil {
		return err
	}

	payload := struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}{Token: resetToken, NewPassword: next}

	if err := a.transport.Post(WithAnonymous(ctx), "/auth/password-reset/confirm", payload, nil); err != nil {
		a.recorder.Record(ctx, "password_reset", "auth", AuditFailure, nil)
		return err
	}
	a.recorder.Record(ctx, "password_reset", "auth", AuditSuccess, nil)
	return nil
}
