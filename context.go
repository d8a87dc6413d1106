package authclient

import "context"

type anonymousContextKey struct{}
type deviceNameContextKey struct{}
type systemContextKey struct{}

// WithAnonymous marks requests on ctx as unauthenticated: the transport skips
// the Authorization header and never attempts a token refresh on 401. Used for
// login, signup, refresh, and password-reset calls, where a 401 is a final
// answer rather than an expired session.
func WithAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousContextKey{}, true)
}

// WithDeviceName attaches a human-readable device name to ctx for session
// labeling on login and device registration.
func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, deviceNameContextKey{}, name)
}

// withSystem marks requests the SDK issues on its own behalf, such as audit
// flushes. System requests are not user activity: they never reset the
// inactivity clock and are never themselves audited, so background traffic
// cannot keep an idle session alive or feed the audit ring it is draining.
func withSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemContextKey{}, true)
}

func isSystem(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	system, _ := ctx.Value(systemContextKey{}).(bool)
	return system
}

func isAnonymous(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	anon, _ := ctx.Value(anonymousContextKey{}).(bool)
	return anon
}

func deviceNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(deviceNameContextKey{}).(string)
	return name
}
