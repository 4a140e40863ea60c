package credtrust

import (
	"errors"
	"time"
)

// Config collects every policy knob of the engine. Zero values are filled by
// DefaultConfig; Build validates the final shape.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Lockout      LockoutConfig
	RateLimit    RateLimitConfig
	Reset        ResetConfig
	Audit        AuditConfig
	Cleanup      CleanupConfig
}

// JWTConfig controls bearer token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// PasswordConfig holds the argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// VerificationConfig controls code issuance.
type VerificationConfig struct {
	CodeTTL   time.Duration
	OTPDigits int
	// CollisionRetries bounds regeneration when a fresh numeric code collides
	// with a pending one.
	CollisionRetries int
}

// LockoutConfig controls the failed-login tracker.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// RateRule is one endpoint's fixed-window budget.
type RateRule struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig holds per-endpoint budgets. Rules maps endpoint names to
// budgets; endpoints with no entry fall back to Default. A zero Default
// disables limiting for unlisted endpoints.
type RateLimitConfig struct {
	Rules   map[string]RateRule
	Default RateRule
}

func (c RateLimitConfig) rule(endpoint string) (RateRule, bool) {
	if r, ok := c.Rules[endpoint]; ok {
		return r, r.Max > 0 && r.Window > 0
	}
	return c.Default, c.Default.Max > 0 && c.Default.Window > 0
}

// resetRequestWindow is the span over which ResetConfig.RequestsPerHour is
// counted.
const resetRequestWindow = time.Hour

// ResetConfig controls the password reset protocol.
type ResetConfig struct {
	SecretTTL time.Duration
	// RequestsPerHour caps reset requests per contact before the generic
	// rate-limit error.
	RequestsPerHour int
	// ConfirmThreshold and ConfirmLockout govern the dedicated confirm-attempt
	// tracker for the OTP variant.
	ConfirmThreshold int
	ConfirmLockout   time.Duration
}

// AuditConfig controls the security event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// PersistEvents adds a store-backed sink next to any caller-supplied sink.
	PersistEvents bool
}

// CleanupConfig controls the background sweep of expired rows. A zero
// Interval disables the sweeper; CleanupExpired stays available either way.
type CleanupConfig struct {
	Interval time.Duration
}

// DefaultConfig returns the stock policy: week-long access tokens with
// month-long refresh, 6-digit codes over 15 minutes, 5 failures to a 15
// minute lockout, hourly reset-request caps, hourly cleanup.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     7 * 24 * time.Hour,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Verification: VerificationConfig{
			CodeTTL:          15 * time.Minute,
			OTPDigits:        6,
			CollisionRetries: 5,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Rules: map[string]RateRule{
				EndpointLogin:    {Max: 10, Window: time.Minute},
				EndpointVerify:   {Max: 10, Window: time.Minute},
				EndpointRegister: {Max: 5, Window: time.Minute},
				EndpointReset:    {Max: 5, Window: time.Minute},
			},
		},
		Reset: ResetConfig{
			SecretTTL:        time.Hour,
			RequestsPerHour:  3,
			ConfirmThreshold: 5,
			ConfirmLockout:   15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:       true,
			BufferSize:    1024,
			DropIfFull:    true,
			PersistEvents: true,
		},
		Cleanup: CleanupConfig{
			Interval: time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[string]RateRule, len(cfg.RateLimit.Rules))
		for k, v := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the config for internally inconsistent or unsafe values.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey is required")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Verification.OTPDigits < 4 || c.Verification.OTPDigits > 10 {
		return errors.New("Verification OTPDigits must be between 4 and 10")
	}
	if c.Verification.CollisionRetries < 1 {
		return errors.New("Verification CollisionRetries must be >= 1")
	}

	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	for endpoint, rule := range c.RateLimit.Rules {
		if rule.Max <= 0 || rule.Window <= 0 {
			return errors.New("RateLimit rule for " + endpoint + " must have Max > 0 and Window > 0")
		}
	}

	if c.Reset.SecretTTL <= 0 {
		return errors.New("Reset SecretTTL must be > 0")
	}
	if c.Reset.RequestsPerHour <= 0 {
		return errors.New("Reset RequestsPerHour must be > 0")
	}
	if c.Reset.ConfirmThreshold <= 0 {
		return errors.New("Reset ConfirmThreshold must be > 0")
	}
	if c.Reset.ConfirmLockout <= 0 {
		return errors.New("Reset ConfirmLockout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Cleanup.Interval < 0 {
		return errors.New("Cleanup Interval must be >= 0")
	}

	return nil
}
