package authflow

import (
	"errors"
	"net/url"
	"time"
)

// Config defines a public type used by authflow APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Backend BackendConfig
	MFA     MFAConfig
	Storage StorageConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig defines a public type used by authflow APIs.
//
// BackendConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BackendConfig struct {
	BaseURL string
	// ExchangeTimeout bounds each backend exchange (login, MFA completion).
	// A slow backend must never hang the caller indefinitely.
	ExchangeTimeout time.Duration
	// LogoutTimeout bounds the best-effort logout notification.
	LogoutTimeout time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig defines a public type used by authflow APIs.
//
// MFAConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MFAConfig struct {
	// VerifiedWindow is how long a completed MFA verification suppresses
	// re-prompting on session restore. The duration is a policy value, not
	// a protocol constant.
	VerifiedWindow time.Duration
	// TOTPDigits is the expected length of a numeric TOTP code.
	TOTPDigits int
	// RecoveryCodeLength is the expected length of a recovery code.
	RecoveryCodeLength int
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig defines a public type used by authflow APIs.
//
// StorageConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StorageConfig struct {
	// RedisPrefix namespaces keys when the Redis-backed storage is used.
	RedisPrefix string
	// ScrubOnBuild runs the legacy sensitive-key scrub during Build.
	ScrubOnBuild bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by authflow APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by authflow APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration used by [New]. Callers
// adjust it and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:         "",
			ExchangeTimeout: 15 * time.Second,
			LogoutTimeout:   5 * time.Second,
		},
		MFA: MFAConfig{
			VerifiedWindow:     24 * time.Hour,
			TOTPDigits:         6,
			RecoveryCodeLength: 8,
		},
		Storage: StorageConfig{
			RedisPrefix:  "af",
			ScrubOnBuild: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Backend
	if c.Backend.BaseURL == "" {
		return errors.New("Backend BaseURL is required")
	}
	if _, err := url.Parse(c.Backend.BaseURL); err != nil {
		return errors.New("Backend BaseURL must be a valid URL")
	}
	if c.Backend.ExchangeTimeout <= 0 {
		return errors.New("Backend ExchangeTimeout must be > 0")
	}
	if c.Backend.LogoutTimeout <= 0 {
		return errors.New("Backend LogoutTimeout must be > 0")
	}

	// MFA
	if c.MFA.VerifiedWindow <= 0 {
		return errors.New("MFA VerifiedWindow must be > 0")
	}
	if c.MFA.TOTPDigits < 6 || c.MFA.TOTPDigits > 10 {
		return errors.New("MFA TOTPDigits must be between 6 and 10")
	}
	if c.MFA.RecoveryCodeLength < 8 {
		return errors.New("MFA RecoveryCodeLength must be >= 8")
	}

	// Storage
	if c.Storage.RedisPrefix == "" {
		return errors.New("Storage RedisPrefix is required")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
