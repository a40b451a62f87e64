package privauth

import (
	"errors"
	"time"

	"github.com/privora/privauth/password"
)

// Config groups every tunable of the engine. Instances are configured during
// initialization and then treated as immutable.
type Config struct {
	JWT              JWTConfig
	Password         PasswordConfig
	PasswordPolicy   password.Policy
	Reset            ChallengeConfig
	Verification     VerificationConfig
	RecoveryThrottle RecoveryThrottleConfig
	Policy           PolicyConfig
	Audit            AuditConfig
}

// JWTConfig configures the HS256 session tokens issued by login.
type JWTConfig struct {
	SessionTTL time.Duration
	SigningKey []byte
	Issuer     string
	Leeway     time.Duration
}

// PasswordConfig holds argon2id cost parameters (memory in KB).
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// ChallengeConfig governs the password-reset OTP lifecycle.
type ChallengeConfig struct {
	Digits         int
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	RedisPrefix    string
}

// VerificationConfig governs the email-verification challenge sent at
// registration. It reuses the reset ledger mechanics under its own prefix.
type VerificationConfig struct {
	Enabled     bool
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// RecoveryThrottleConfig caps how often recovery can be requested, separate
// from the per-challenge attempt ceiling.
type RecoveryThrottleConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
}

// PolicyConfig holds behavior switches with a security trade-off attached.
type PolicyConfig struct {
	// RevealUnknownEmail makes login and forgot-password distinguish
	// "no account with that email" from "wrong password". Friendlier UX,
	// but it lets callers enumerate registered addresses. Off by default.
	RevealUnknownEmail bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// DefaultConfig returns production-leaning defaults: 6-digit codes with a
// 10 minute TTL, 5 attempts, 30 second resend cooldown, 24h sessions.
// JWT.SigningKey must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SessionTTL: 24 * time.Hour,
			Issuer:     "privauth",
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordPolicy: password.DefaultPolicy(),
		Reset: ChallengeConfig{
			Digits:         6,
			TTL:            10 * time.Minute,
			MaxAttempts:    5,
			ResendCooldown: 30 * time.Second,
			RedisPrefix:    "apr",
		},
		Verification: VerificationConfig{
			Enabled:     true,
			Digits:      6,
			TTL:         24 * time.Hour,
			MaxAttempts: 5,
			RedisPrefix: "avf",
		},
		RecoveryThrottle: RecoveryThrottleConfig{
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         true,
			Window:                   15 * time.Minute,
			MaxRequests:              10,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
	}
}

func (c Config) validate() error {
	if c.Reset.Digits < 4 || c.Reset.Digits > 10 {
		return errors.New("reset OTP digits must be between 4 and 10")
	}
	if c.Reset.TTL <= 0 {
		return errors.New("reset TTL must be positive")
	}
	if c.Reset.MaxAttempts <= 0 {
		return errors.New("reset max attempts must be positive")
	}
	if c.Reset.ResendCooldown < 0 || c.Reset.ResendCooldown >= c.Reset.TTL {
		return errors.New("resend cooldown must be shorter than the reset TTL")
	}
	if c.Verification.Enabled {
		if c.Verification.Digits < 4 || c.Verification.Digits > 10 {
			return errors.New("verification OTP digits must be between 4 and 10")
		}
		if c.Verification.TTL <= 0 {
			return errors.New("verification TTL must be positive")
		}
		if c.Verification.MaxAttempts <= 0 {
			return errors.New("verification max attempts must be positive")
		}
	}
	if c.RecoveryThrottle.EnableIdentifierThrottle || c.RecoveryThrottle.EnableIPThrottle {
		if c.RecoveryThrottle.Window <= 0 || c.RecoveryThrottle.MaxRequests <= 0 {
			return errors.New("recovery throttle window and budget must be positive")
		}
	}
	return nil
}
