package authclient

import (
	"time"

	"github.com/givebase/authclient/internal/audit"
)

// Permission is a single resource/action grant.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Role is a named set of permissions assigned to a user.
type Role struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// User is the authenticated identity. Immutable from the client's point of
// view except through explicit profile or role updates from the backend.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	TenantID          string     `json:"tenant_id,omitempty"`
	Roles             []Role     `json:"roles,omitempty"`
	MFAEnabled        bool       `json:"mfa_enabled"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
}

// SecurityPolicy is the tenant-scoped session policy. A zero SessionTimeout
// means the client default applies.
type SecurityPolicy struct {
	SessionTimeout time.Duration `json:"session_timeout,omitempty"`
	MFARequired    bool          `json:"mfa_required,omitempty"`
}

// TenantSettings carries the tenant's security policy and feature flags.
type TenantSettings struct {
	Security     SecurityPolicy  `json:"security"`
	FeatureFlags map[string]bool `json:"feature_flags,omitempty"`
}

// TenantQuotas bounds tenant-level consumption. Only the fields the client
// enforces locally are modeled.
type TenantQuotas struct {
	APICallsPerMinute int `json:"api_calls_per_minute,omitempty"`
}

// TenantContext scopes rate-limit keys and session-timeout policy. A session
// has at most one active tenant; switching replaces it atomically.
type TenantContext struct {
	ID       string         `json:"id"`
	Plan     string         `json:"plan,omitempty"`
	Settings TenantSettings `json:"settings"`
	Quotas   TenantQuotas   `json:"quotas"`
}

// DeviceType classifies the device a fingerprint was derived on.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// DeviceInfo is the stable per-client device identity used for session
// binding and audit trails. Created on first registration, persisted
// indefinitely, refreshed only when trust state changes.
type DeviceInfo struct {
	Fingerprint  string     `json:"fingerprint"`
	Type         DeviceType `json:"type"`
	Trusted      bool       `json:"trusted"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// SessionInfo is metadata derived from the access token's claims on SetTokens.
type SessionInfo struct {
	SessionID         string    `json:"session_id"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
}

// Session is the full client-side authentication state snapshot handed to
// subscribers. IsAuthenticated is true iff an access token is present and
// unexpired at snapshot time.
type Session struct {
	User            *User
	Tenant          *TenantContext
	AccessToken     string
	RefreshToken    string
	CSRFToken       string
	SessionInfo     *SessionInfo
	DeviceInfo      *DeviceInfo
	LastActivity    time.Time
	IsAuthenticated bool
	MFAPending      bool
}

// MFAType identifies the second-factor channel of a challenge.
type MFAType string

const (
	MFATypeTOTP  MFAType = "totp"
	MFATypeSMS   MFAType = "sms"
	MFATypeEmail MFAType = "email"
)

// MFAChallenge is issued by a login attempt when a second factor is required.
// It is consumed exactly once by a verification call and expires server-side
// at ExpiresAt; after that the client must request a new challenge.
type MFAChallenge struct {
	ChallengeID       string    `json:"challenge_id"`
	Type              MFAType   `json:"type"`
	MaskedDestination string    `json:"masked_destination,omitempty"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Credentials is the login input. MFACode and DeviceName are optional.
type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	MFACode    string `json:"mfa_code,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// SignupRequest is the account-creation input.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id,omitempty"`
}

// LoginResult is returned by [AuthService.Login] and
// [AuthService.VerifyMFALogin]. When the backend requires a second factor and
// no code was supplied, MFARequired is true, Challenge describes the pending
// challenge, and no session is established.
type LoginResult struct {
	User        *User
	Tenant      *TenantContext
	MFARequired bool
	Challenge   *MFAChallenge
}

// MFASetup is returned by [AuthService.SetupMFA] during TOTP enrollment.
type MFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCodeURL  string `json:"qr_code_url,omitempty"`
	Challenge  *MFAChallenge
}

// RemoteSession describes one of the account's active sessions as reported by
// the backend.
type RemoteSession struct {
	ID           string    `json:"id"`
	DeviceName   string    `json:"device_name,omitempty"`
	IP           string    `json:"ip,omitempty"`
	Location     string    `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Current      bool      `json:"current"`
}

// TrustedDevice is a device the backend has marked as trusted for the account.
type TrustedDevice struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	TrustedAt   time.Time `json:"trusted_at"`
}

// AuditEntry is a single security-relevant event in the local audit buffer.
type AuditEntry = audit.Entry

// AuditOutcome is the result classification of an audited operation.
type AuditOutcome = audit.Outcome

// Audit outcome values.
const (
	AuditSuccess   = audit.OutcomeSuccess
	AuditFailure   = audit.OutcomeFailure
	AuditInitiated = audit.OutcomeInitiated
)

// AuditSink receives emitted audit entries.
type AuditSink = audit.Sink
