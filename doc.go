// Package authclient provides the secure session and API-transport layer for
// clients of the Givebase crowdfunding platform: an authentication state store
// with token lifecycle management, multi-factor login flows, and a hardened
// HTTP transport with request enrichment, retry/backoff, CSRF protection,
// client-side rate limiting, and audit logging.
//
// The package is designed for concurrent use: all exported methods are safe to
// call from multiple goroutines after construction through [Builder.Build].
//
// # Architecture boundaries
//
// authclient is the public surface. It exposes [Client], [Builder], [Config],
// [SecureStore], [Transport], [AuthService], and value types (Session, User,
// TenantContext, etc.). Rate limiting and the audit ring buffer live under
// internal/ and are never exported; persistence goes through the
// [storage.Store] port and never touches the host environment directly.
//
// # What this package must NOT do
//
//   - Verify token signatures. The backend is the authority; the client trusts
//     only structure and expiry of a bearer token.
//   - Render UI. Notifications leave through the [Notifier] port as structured
//     messages.
//   - Bypass the [SecureStore] to write session state. The store is the single
//     writer of persisted auth keys.
//
// # Failure contract
//
// Validation errors (weak password, invalid user data, disposable email)
// surface before any network call. Transport failures are normalized into a
// single [*APIError] carrying a human-readable message, the original status,
// and a retryable flag. Session-invalidating failures always clear the store
// before surfacing, so callers never observe a half-valid session. Audit
// logging never alters the outcome of the operation being logged.
package authclient
