package goTrust

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/goTrust/permission"
)

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file over the
// defaults, applies GOTRUST_* environment overrides and validates the result.
//
// A permission section in the file replaces the default table as a whole;
// its roles are not merged with the built-in ones.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	defaults := defaultConfig()
	cfg := defaultConfig()
	cfg.Permission = permission.Definition{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("parsing config file: unknown key %q", undecoded[0].String())
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	if len(cfg.Permission.Roles) == 0 {
		cfg.Permission = defaults.Permission
	}
	if len(cfg.Permission.Hierarchy) == 0 {
		cfg.Permission.Hierarchy = append([]string(nil), permission.DefaultHierarchy...)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets and deployment-specific switches come from
// the environment: GOTRUST_SESSION_SIGNING_KEY, GOTRUST_SESSION_VERIFY_KEY,
// GOTRUST_BIOMETRIC_KEY, GOTRUST_BIOMETRIC_ENABLED, GOTRUST_THROTTLE_BACKEND,
// GOTRUST_LOG_LEVEL, GOTRUST_LOG_FORMAT.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GOTRUST_SESSION_SIGNING_KEY"); v != "" {
		cfg.Session.SigningKey = v
		cfg.Session.SignedTokens = true
	}
	if v := os.Getenv("GOTRUST_SESSION_VERIFY_KEY"); v != "" {
		cfg.Session.VerifyKey = v
	}

	if v := os.Getenv("GOTRUST_BIOMETRIC_KEY"); v != "" {
		cfg.Biometric.Key = v
	}
	if v := os.Getenv("GOTRUST_BIOMETRIC_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GOTRUST_BIOMETRIC_ENABLED: %w", err)
		}
		cfg.Biometric.Enabled = enabled
	}

	if v := os.Getenv("GOTRUST_THROTTLE_BACKEND"); v != "" {
		cfg.Throttle.Backend = v
	}

	if v := os.Getenv("GOTRUST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GOTRUST_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}
