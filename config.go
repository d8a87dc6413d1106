package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines the client's tuning knobs. Zero-valued durations, counts,
// and capacities are filled from defaults during [Builder.Build]. Fields
// whose zero value is meaningful are read literally: Audit.Enabled,
// Metrics.Enabled, and Password.MinScore. Callers overriding a subset of
// fields should start from [DefaultConfig] or [ConfigFromEnv] rather than a
// zero Config. Instances are treated as immutable after construction.
type Config struct {
	API       APIConfig
	Session   SessionConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// APIConfig configures the transport.
type APIConfig struct {
	// BaseURL is the identity/payments backend root, e.g. "https://api.givebase.org".
	BaseURL string
	// ClientVersion is sent on every request as X-Client-Version.
	ClientVersion string
	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration
	// MaxRetries is the attempt budget for retryable failures on idempotent methods.
	MaxRetries int
	// RetryBaseDelay is the first backoff step; subsequent steps double.
	RetryBaseDelay time.Duration
	// RateLimitFallbackWait applies when a 429 carries no Retry-After header.
	RateLimitFallbackWait time.Duration
}

// SessionConfig configures the secure store's background behavior.
type SessionConfig struct {
	// ExpiryCheckInterval is how often the access token's expiry is re-validated.
	ExpiryCheckInterval time.Duration
	// InactivityTimeout clears the session after this much idle time. Tenants
	// may override it through their security policy.
	InactivityTimeout time.Duration
	// TokenLeeway absorbs client/server clock skew when judging expiry.
	TokenLeeway time.Duration
}

// LockoutConfig configures the client-side account lockout guard. This is a
// UX nicety, not a security control: it lives in client state and is
// trivially bypassed; authoritative lockout is enforced server-side.
type LockoutConfig struct {
	// Threshold is the failed-attempt count that triggers a lockout.
	Threshold int
	// Window is the rolling period in which failures are counted.
	Window time.Duration
	// Cooldown is how long a locked account stays locked.
	Cooldown time.Duration
}

// RateLimitConfig configures the per-(tenant,user,endpoint) call budget.
type RateLimitConfig struct {
	Window time.Duration
	Budget int
}

// PasswordConfig configures the pre-flight password policy.
type PasswordConfig struct {
	// MinScore is the lowest acceptable strength score (0-4). Read literally:
	// 0 accepts any strength. [DefaultConfig] carries 3.
	MinScore int
}

// AuditConfig configures the audit pipeline.
type AuditConfig struct {
	Enabled bool
	// RingCapacity bounds the local entry buffer; oldest entries evict first.
	RingCapacity int
	// BufferSize is the async dispatch channel depth.
	BufferSize int
	// DropIfFull drops entries instead of blocking when the dispatch buffer is full.
	DropIfFull bool
	// CollectorPath, when set, enables periodic flushing of the ring buffer to
	// the backend (POST CollectorPath).
	CollectorPath string
	// FlushInterval is how often a flush is attempted.
	FlushInterval time.Duration
	// FlushBatchSize caps entries per flush request.
	FlushBatchSize int
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the recommended configuration. Only API.BaseURL must
// still be set before use. It is the intended starting point for callers who
// override individual fields, since a zero Config leaves audit and metrics
// disabled and the password policy open.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			RequestTimeout:        30 * time.Second,
			MaxRetries:            3,
			RetryBaseDelay:        time.Second,
			RateLimitFallbackWait: 5 * time.Second,
		},
		Session: SessionConfig{
			ExpiryCheckInterval: time.Minute,
			InactivityTimeout:   30 * time.Minute,
			TokenLeeway:         30 * time.Second,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    time.Hour,
			Cooldown:  15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			Budget: 100,
		},
		Password: PasswordConfig{
			MinScore: 3,
		},
		Audit: AuditConfig{
			Enabled:        true,
			RingCapacity:   100,
			BufferSize:     64,
			DropIfFull:     true,
			FlushInterval:  30 * time.Second,
			FlushBatchSize: 25,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("API.BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API.BaseURL is not an absolute URL: %q", c.API.BaseURL)
	}
	if c.API.RequestTimeout <= 0 {
		return errors.New("API.RequestTimeout must be positive")
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		return errors.New("API.MaxRetries must be between 0 and 10")
	}
	if c.Session.ExpiryCheckInterval <= 0 {
		return errors.New("Session.ExpiryCheckInterval must be positive")
	}
	if c.Session.InactivityTimeout <= 0 {
		return errors.New("Session.InactivityTimeout must be positive")
	}
	if c.Lockout.Threshold <= 0 || c.Lockout.Window <= 0 || c.Lockout.Cooldown <= 0 {
		return errors.New("Lockout threshold, window, and cooldown must be positive")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Budget <= 0 {
		return errors.New("RateLimit window and budget must be positive")
	}
	if c.Password.MinScore < 0 || c.Password.MinScore > 4 {
		return errors.New("Password.MinScore must be between 0 and 4")
	}
	if c.Audit.Enabled && c.Audit.RingCapacity <= 0 {
		return errors.New("Audit.RingCapacity must be positive when audit is enabled")
	}
	return nil
}

// envConfig maps startup environment variables onto config fields.
type envConfig struct {
	BaseURL           string        `env:"AUTHCLIENT_BASE_URL"`
	ClientVersion     string        `env:"AUTHCLIENT_VERSION"`
	RequestTimeout    time.Duration `env:"AUTHCLIENT_REQUEST_TIMEOUT"`
	InactivityTimeout time.Duration `env:"AUTHCLIENT_INACTIVITY_TIMEOUT"`
	RateLimitBudget   int           `env:"AUTHCLIENT_RATE_BUDGET"`
	AuditEnabled      *bool         `env:"AUTHCLIENT_AUDIT_ENABLED"`
	CollectorPath     string        `env:"AUTHCLIENT_AUDIT_COLLECTOR_PATH"`
	MetricsEnabled    *bool         `env:"AUTHCLIENT_METRICS_ENABLED"`
}

// ConfigFromEnv builds a Config from defaults overlaid with the
// AUTHCLIENT_* environment variables.
func ConfigFromEnv() (Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.API.BaseURL = ec.BaseURL
	if ec.ClientVersion != "" {
		cfg.API.ClientVersion = ec.ClientVersion
	}
	if ec.RequestTimeout > 0 {
		cfg.API.RequestTimeout = ec.RequestTimeout
	}
	if ec.InactivityTimeout > 0 {
		cfg.Session.InactivityTimeout = ec.InactivityTimeout
	}
	if ec.RateLimitBudget > 0 {
		cfg.RateLimit.Budget = ec.RateLimitBudget
	}
	if ec.AuditEnabled != nil {
		cfg.Audit.Enabled = *ec.AuditEnabled
	}
	if ec.CollectorPath != "" {
		cfg.Audit.CollectorPath = ec.CollectorPath
	}
	if ec.MetricsEnabled != nil {
		cfg.Metrics.Enabled = *ec.MetricsEnabled
	}
	return cfg, nil
}

// applyDefaults fills zero-valued tunables from defaultConfig. Fields whose
// zero value is meaningful (enablement flags, Password.MinScore) pass through
// untouched.
func applyDefaults(c Config) Config {
	def := defaultConfig()
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = def.API.RequestTimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = def.API.MaxRetries
	}
	if c.API.RetryBaseDelay == 0 {
		c.API.RetryBaseDelay = def.API.RetryBaseDelay
	}
	if c.API.RateLimitFallbackWait == 0 {
		c.API.RateLimitFallbackWait = def.API.RateLimitFallbackWait
	}
	if c.Session.ExpiryCheckInterval == 0 {
		c.Session.ExpiryCheckInterval = def.Session.ExpiryCheckInterval
	}
	if c.Session.InactivityTimeout == 0 {
		c.Session.InactivityTimeout = def.Session.InactivityTimeout
	}
	if c.Session.TokenLeeway == 0 {
		c.Session.TokenLeeway = def.Session.TokenLeeway
	}
	if c.Lockout.Threshold == 0 {
		c.Lockout.Threshold = def.Lockout.Threshold
	}
	if c.Lockout.Window == 0 {
		c.Lockout.Window = def.Lockout.Window
	}
	if c.Lockout.Cooldown == 0 {
		c.Lockout.Cooldown = def.Lockout.Cooldown
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = def.RateLimit.Window
	}
	if c.RateLimit.Budget == 0 {
		c.RateLimit.Budget = def.RateLimit.Budget
	}
	if c.Audit.RingCapacity == 0 {
		c.Audit.RingCapacity = def.Audit.RingCapacity
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = def.Audit.FlushInterval
	}
	if c.Audit.FlushBatchSize == 0 {
		c.Audit.FlushBatchSize = def.Audit.FlushBatchSize
	}
	return c
}
