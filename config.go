package goTrust

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goTrust/biometric"
	"github.com/MrEthical07/goTrust/internal/logging"
	"github.com/MrEthical07/goTrust/lockout"
	"github.com/MrEthical07/goTrust/password"
	"github.com/MrEthical07/goTrust/permission"
)

// Config is the full engine configuration. Start from DefaultConfig (or
// LoadConfig) and adjust; the engine copies it at Build and never reads it
// again.
type Config struct {
	Password   PasswordConfig        `yaml:"password" toml:"password"`
	Lockout    LockoutConfig         `yaml:"lockout" toml:"lockout"`
	Session    SessionConfig         `yaml:"session" toml:"session"`
	StepUp     StepUpConfig          `yaml:"step_up" toml:"step_up"`
	Permission permission.Definition `yaml:"permission" toml:"permission"`
	Biometric  BiometricConfig       `yaml:"biometric" toml:"biometric"`
	TOTP       TOTPConfig            `yaml:"totp" toml:"totp"`
	Throttle   ThrottleConfig        `yaml:"throttle" toml:"throttle"`
	Audit      AuditConfig           `yaml:"audit" toml:"audit"`
	Metrics    MetricsConfig         `yaml:"metrics" toml:"metrics"`
	Timeouts   TimeoutConfig         `yaml:"timeouts" toml:"timeouts"`
	Input      InputConfig           `yaml:"input" toml:"input"`
	Logging    logging.Config        `yaml:"logging" toml:"logging"`
}

/*
====================================
PASSWORD / LOCKOUT
====================================
*/

// PasswordConfig holds the argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory      uint32 `yaml:"memory_kib" toml:"memory_kib"`
	Time        uint32 `yaml:"time" toml:"time"`
	Parallelism uint8  `yaml:"parallelism" toml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length" toml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length" toml:"key_length"`
	MinLength   int    `yaml:"min_length" toml:"min_length"`
}

type LockoutConfig struct {
	Threshold int           `yaml:"threshold" toml:"threshold"`
	Duration  time.Duration `yaml:"duration" toml:"duration"`
}

/*
====================================
SESSION
====================================
*/

// SessionConfig controls session lifetime, fingerprinting and the optional
// signed token envelope.
type SessionConfig struct {
	IdleTimeout      time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	AbsoluteLifetime time.Duration `yaml:"absolute_lifetime" toml:"absolute_lifetime"`
	// FingerprintIncludeIP mixes the client address into the fingerprint.
	// Off by default: mobile clients roam between networks.
	FingerprintIncludeIP bool   `yaml:"fingerprint_include_ip" toml:"fingerprint_include_ip"`
	RedisPrefix          string `yaml:"redis_prefix" toml:"redis_prefix"`

	// SignedTokens wraps session IDs in a JWT envelope.
	SignedTokens  bool   `yaml:"signed_tokens" toml:"signed_tokens"`
	SigningMethod string `yaml:"signing_method" toml:"signing_method"` // "hs256" (default) or "ed25519"
	// SigningKey and VerifyKey are standard base64. For hs256 only SigningKey
	// is used; for ed25519 they are the private and public key.
	SigningKey string `yaml:"signing_key" toml:"signing_key"`
	VerifyKey  string `yaml:"verify_key" toml:"verify_key"`
	KeyID      string `yaml:"key_id" toml:"key_id"`
	Issuer     string `yaml:"issuer" toml:"issuer"`
}

type StepUpConfig struct {
	TTL time.Duration `yaml:"ttl" toml:"ttl"`
}

/*
====================================
BIOMETRIC / TOTP
====================================
*/

// Match policies for accounts with several verified templates.
const (
	MatchAny = "any"
	MatchAll = "all"
)

// BiometricConfig configures the biometric step-up factor. The factor is off
// unless Enabled is set and a FeatureExtractor is supplied to the Builder.
type BiometricConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Key is the 32-byte AES-256 template key, standard base64.
	Key              string  `yaml:"key" toml:"key"`
	VectorSize       int     `yaml:"vector_size" toml:"vector_size"`
	MinConfidence    float64 `yaml:"min_confidence" toml:"min_confidence"`
	Tolerance        float64 `yaml:"tolerance" toml:"tolerance"`
	FailureThreshold int     `yaml:"failure_threshold" toml:"failure_threshold"`
	MatchPolicy      string  `yaml:"match_policy" toml:"match_policy"`
	MaxSampleBytes   int     `yaml:"max_sample_bytes" toml:"max_sample_bytes"`
}

type TOTPConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Digits    int    `yaml:"digits" toml:"digits"`
	Period    uint   `yaml:"period" toml:"period"`
	Skew      uint   `yaml:"skew" toml:"skew"`
	Algorithm string `yaml:"algorithm" toml:"algorithm"`
}

// ThrottleConfig caps step-up attempts per account and login attempts per
// client address. Backend "redis" requires Builder.WithRedis.
type ThrottleConfig struct {
	Backend  string        `yaml:"backend" toml:"backend"` // "local" (default), "redis" or "off"
	Attempts int           `yaml:"attempts" toml:"attempts"`
	Window   time.Duration `yaml:"window" toml:"window"`
	// LoginAttemptsPerIP bounds Authenticate calls per client IP in Window,
	// across all handles. Zero disables it.
	LoginAttemptsPerIP int    `yaml:"login_attempts_per_ip" toml:"login_attempts_per_ip"`
	RedisPrefix        string `yaml:"redis_prefix" toml:"redis_prefix"`
}

/*
====================================
AUDIT / METRICS / TIMEOUTS
====================================
*/

// AuditConfig controls delivery to the audit sink. With FailClosed the
// operation that produced an event fails when the event cannot be recorded.
type AuditConfig struct {
	FailClosed bool `yaml:"fail_closed" toml:"fail_closed"`
	// Async hands events to a buffered dispatcher instead of writing inline.
	// It cannot be combined with FailClosed.
	Async      bool `yaml:"async" toml:"async"`
	BufferSize int  `yaml:"buffer_size" toml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full" toml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" toml:"enabled"`
	EnableLatencyHistograms bool `yaml:"latency_histograms" toml:"latency_histograms"`
}

// TimeoutConfig bounds every call to an external collaborator.
type TimeoutConfig struct {
	Store time.Duration `yaml:"store" toml:"store"`
	Audit time.Duration `yaml:"audit" toml:"audit"`
}

type InputConfig struct {
	MaxHandleBytes int `yaml:"max_handle_bytes" toml:"max_handle_bytes"`
	MaxSecretBytes int `yaml:"max_secret_bytes" toml:"max_secret_bytes"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Password: PasswordConfig{
			Memory:      pw.Memory,
			Time:        pw.Time,
			Parallelism: pw.Parallelism,
			SaltLength:  pw.SaltLength,
			KeyLength:   pw.KeyLength,
			MinLength:   pw.MinPasswordBytes,
		},
		Lockout: LockoutConfig{
			Threshold: lockout.DefaultThreshold,
			Duration:  lockout.DefaultDuration,
		},
		Session: SessionConfig{
			IdleTimeout:      30 * time.Minute,
			AbsoluteLifetime: 12 * time.Hour,
			RedisPrefix:      "gt:",
			SigningMethod:    "hs256",
			Issuer:           "gotrust",
		},
		StepUp: StepUpConfig{TTL: 30 * time.Minute},
		Permission: permission.Definition{
			MaxBits:   64,
			Hierarchy: append([]string(nil), permission.DefaultHierarchy...),
			Roles: map[string][]string{
				"super_admin": {permission.Wildcard},
				"admin":       {"account.read", "account.unlock", "session.revoke", "biometric.remove", "audit.read", "issue.read", "issue.write", "issue.delete"},
				"manager":     {"account.read", "issue.read", "issue.write", "issue.assign"},
				"employee":    {"issue.read", "issue.write"},
				"viewer":      {"issue.read"},
				"user":        {},
			},
			StepUpRequired: []string{"account.unlock", "biometric.remove", "issue.delete"},
		},
		Biometric: BiometricConfig{
			VectorSize:       128,
			MinConfidence:    0.9,
			Tolerance:        biometric.DefaultTolerance,
			FailureThreshold: biometric.DefaultFailureThreshold,
			MatchPolicy:      MatchAny,
			MaxSampleBytes:   4 << 20,
		},
		TOTP: TOTPConfig{
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		Throttle: ThrottleConfig{
			Backend:            "local",
			Attempts:           10,
			Window:             time.Minute,
			LoginAttemptsPerIP: 60,
			RedisPrefix:        "gt:thr:",
		},
		Audit: AuditConfig{
			FailClosed: true,
			BufferSize: 1024,
		},
		Timeouts: TimeoutConfig{
			Store: 2 * time.Second,
			Audit: 2 * time.Second,
		},
		Input: InputConfig{
			MaxHandleBytes: 256,
			MaxSecretBytes: password.DefaultMaxPasswordBytes,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	// Password floors are enforced again by password.NewArgon2; checking here
	// gives a config-level message.
	if c.Password.Time < 3 {
		return errors.New("Password Time must be >= 3")
	}
	if c.Password.Memory < 64*1024 {
		return errors.New("Password Memory must be >= 65536 KiB")
	}
	if c.Password.Parallelism < 4 {
		return errors.New("Password Parallelism must be >= 4")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}

	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.AbsoluteLifetime < c.Session.IdleTimeout {
		return errors.New("Session AbsoluteLifetime must be >= IdleTimeout")
	}
	if c.Session.SignedTokens {
		switch strings.ToLower(c.Session.SigningMethod) {
		case "hs256", "ed25519":
		default:
			return errors.New("Session SigningMethod must be 'hs256' or 'ed25519'")
		}
		if c.Session.SigningKey == "" {
			return errors.New("Session SigningKey is required when SignedTokens is true")
		}
		if _, err := decodeKey(c.Session.SigningKey); err != nil {
			return fmt.Errorf("Session SigningKey: %w", err)
		}
		if c.Session.VerifyKey != "" {
			if _, err := decodeKey(c.Session.VerifyKey); err != nil {
				return fmt.Errorf("Session VerifyKey: %w", err)
			}
		}
	}

	if c.StepUp.TTL <= 0 {
		return errors.New("StepUp TTL must be > 0")
	}

	if c.Biometric.Enabled {
		key, err := decodeKey(c.Biometric.Key)
		if err != nil || len(key) != biometric.KeySize {
			return errors.New("Biometric Key must be 32 bytes of standard base64")
		}
		if c.Biometric.VectorSize <= 0 {
			return errors.New("Biometric VectorSize must be > 0")
		}
		if c.Biometric.MinConfidence < 0 || c.Biometric.MinConfidence > 1 {
			return errors.New("Biometric MinConfidence must be within [0,1]")
		}
		if c.Biometric.Tolerance <= 0 {
			return errors.New("Biometric Tolerance must be > 0")
		}
		if c.Biometric.FailureThreshold <= 0 {
			return errors.New("Biometric FailureThreshold must be > 0")
		}
		if c.Biometric.MaxSampleBytes <= 0 {
			return errors.New("Biometric MaxSampleBytes must be > 0")
		}
	}
	switch c.Biometric.MatchPolicy {
	case "", MatchAny, MatchAll:
	default:
		return errors.New("Biometric MatchPolicy must be 'any' or 'all'")
	}

	if c.TOTP.Enabled {
		if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
			return errors.New("TOTP Digits must be 6 or 8")
		}
		if c.TOTP.Period < 15 {
			return errors.New("TOTP Period must be >= 15 seconds")
		}
		switch strings.ToUpper(c.TOTP.Algorithm) {
		case "", "SHA1", "SHA256", "SHA512":
		default:
			return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
		}
	}

	switch c.Throttle.Backend {
	case "", "local", "redis", "off":
	default:
		return errors.New("Throttle Backend must be 'local', 'redis' or 'off'")
	}
	if c.Throttle.Backend != "off" {
		if c.Throttle.Attempts <= 0 || c.Throttle.Window <= 0 {
			return errors.New("Throttle Attempts and Window must be > 0")
		}
		if c.Throttle.LoginAttemptsPerIP < 0 {
			return errors.New("Throttle LoginAttemptsPerIP must be >= 0")
		}
	}

	if c.Audit.Async && c.Audit.FailClosed {
		return errors.New("Audit Async cannot be combined with FailClosed")
	}
	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Async is true")
	}

	if c.Timeouts.Store <= 0 || c.Timeouts.Audit <= 0 {
		return errors.New("Timeouts Store and Audit must be > 0")
	}

	if c.Input.MaxHandleBytes <= 0 {
		return errors.New("Input MaxHandleBytes must be > 0")
	}
	if c.Input.MaxSecretBytes <= 0 || c.Input.MaxSecretBytes > password.DefaultMaxPasswordBytes {
		return fmt.Errorf("Input MaxSecretBytes must be within (0,%d]", password.DefaultMaxPasswordBytes)
	}

	if len(c.Permission.Roles) == 0 {
		return errors.New("Permission Roles must be provided")
	}
	return nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty key")
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("key is not valid base64")
	}
	return b, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Permission.Hierarchy = append([]string(nil), cfg.Permission.Hierarchy...)
	out.Permission.StepUpRequired = append([]string(nil), cfg.Permission.StepUpRequired...)
	if cfg.Permission.Roles != nil {
		out.Permission.Roles = make(map[string][]string, len(cfg.Permission.Roles))
		for role, perms := range cfg.Permission.Roles {
			out.Permission.Roles[role] = append([]string(nil), perms...)
		}
	}
	return out
}
