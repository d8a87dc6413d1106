package authclient

import (
	"context"
	"fmt"

	"github.com/givebase/authclient/password"
)

// Signup creates an account. Password strength and the disposable-email
// denylist are enforced locally before any network call.
func (a *AuthService) Signup(ctx context.Context, req SignupRequest) (*LoginResult, error) {
	if err := a.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}
	if password.IsDisposableEmail(req.Email) {
		return nil, fmt.Errorf("%w: %s", ErrDisposableEmail, req.Email)
	}

	var resp sessionResponse
	if err := a.transport.Post(WithAnonymous(ctx), "/auth/signup", req, &resp); err != nil {
		a.recorder.Record(ctx, "signup", "auth", AuditFailure, map[string]string{
			"email": req.Email,
		})
		return nil, err
	}
	a.recorder.Record(ctx, "signup", "auth", AuditSuccess, map[string]string{
		"email": req.Email,
	})

	// Some deployments auto-login on signup; establish the session only when
	// the backend issued credentials.
	if resp.AccessToken != "" {
		return a.establishSession(ctx, req.Email, &resp)
	}
	return &LoginResult{User: resp.User, Tenant: resp.Tenant}, nil
}

// checkPasswordPolicy applies the local strength score against the configured
// minimum. Raised synchronously to the caller, never silently dropped.
func (a *AuthService) checkPasswordPolicy(pw string) error {
	if score := password.Score(pw); score < a.password.MinScore {
		return fmt.Errorf("%w: strength score %d, need at least %d",
			ErrWeakPassword, score, a.password.MinScore)
	}
	return nil
}
