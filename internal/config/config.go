// Copyright (c) 2026 Keypo Labs
//
// This file is part of keypo-keyring.
//
// keypo-keyring is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@keypo.io for commercial licensing options.

// Package config loads and validates server configuration. Settings come from
// a YAML file with environment variable overrides; the master key and the
// session signing secret come only from the environment, never from the file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keypo/keyring/pkg/passkey"
	"github.com/keypo/keyring/pkg/ratelimit"
)

// Environment variables holding the two deployment secrets. Keeping them out
// of the config file keeps them out of config backups and version control.
const (
	EnvMasterKey     = "KEYRING_MASTER_KEY"
	EnvSessionSecret = "KEYRING_JWT_SECRET"
)

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn"`
	Session   SessionConfig   `yaml:"session"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`

	// MasterSecret is the envelope master key, from KEYRING_MASTER_KEY only.
	MasterSecret string `yaml:"-"`

	// SessionSecret signs session tokens, from KEYRING_JWT_SECRET only.
	SessionSecret string `yaml:"-"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds"`
}

// WebAuthnConfig contains the relying party settings for passkey ceremonies.
type WebAuthnConfig struct {
	RPID           string   `yaml:"rp_id"`
	RPDisplayName  string   `yaml:"rp_display_name"`
	RPOrigins      []string `yaml:"rp_origins"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// SessionConfig controls session token issuance.
type SessionConfig struct {
	Issuer     string `yaml:"issuer"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// ChallengeConfig controls the pending-challenge store.
type ChallengeConfig struct {
	TTLMinutes             int `yaml:"ttl_minutes"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig selects the user directory backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the database file path, required for the sqlite backend.
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, fills in defaults, and validates the result. An empty path loads
// defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// #nosec G304 - config file path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	cfg.MasterSecret = os.Getenv(EnvMasterKey)
	cfg.SessionSecret = os.Getenv(EnvSessionSecret)

	if host := os.Getenv("KEYRING_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("KEYRING_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid KEYRING_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid KEYRING_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}
	if level := os.Getenv("KEYRING_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("KEYRING_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if rpID := os.Getenv("KEYRING_RP_ID"); rpID != "" {
		cfg.WebAuthn.RPID = rpID
	}
	if origins := os.Getenv("KEYRING_RP_ORIGINS"); origins != "" {
		cfg.WebAuthn.RPOrigins = splitAndTrim(origins)
	}
	if dbPath := os.Getenv("KEYRING_DB_PATH"); dbPath != "" {
		cfg.Storage.Backend = "sqlite"
		cfg.Storage.Path = dbPath
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SetDefaults fills in zero-valued fields with production defaults.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 15
	}
	if c.Server.IdleTimeoutSeconds == 0 {
		c.Server.IdleTimeoutSeconds = 60
	}
	if c.WebAuthn.RPDisplayName == "" {
		c.WebAuthn.RPDisplayName = "Keypo Wallet"
	}
	if c.WebAuthn.TimeoutSeconds == 0 {
		c.WebAuthn.TimeoutSeconds = 60
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "keypo-wallet"
	}
	if c.Session.TTLMinutes == 0 {
		c.Session.TTLMinutes = 30
	}
	if c.Challenge.TTLMinutes == 0 {
		c.Challenge.TTLMinutes = 5
	}
	if c.Challenge.CleanupIntervalSeconds == 0 {
		c.Challenge.CleanupIntervalSeconds = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 120
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
}

// Validate checks if the configuration is valid. A validation failure must
// stop the process before it serves any request.
func (c *Config) Validate() error {
	if c.MasterSecret == "" {
		return fmt.Errorf("%s must be set", EnvMasterKey)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("%s must be set", EnvSessionSecret)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("webauthn rp_id must be specified")
	}
	if len(c.WebAuthn.RPOrigins) == 0 {
		return fmt.Errorf("webauthn rp_origins must be specified")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or sqlite)", c.Storage.Backend)
	}

	return nil
}

// PasskeyConfig builds the ceremony engine configuration.
func (c *Config) PasskeyConfig() *passkey.Config {
	return &passkey.Config{
		RPID:          c.WebAuthn.RPID,
		RPDisplayName: c.WebAuthn.RPDisplayName,
		RPOrigins:     c.WebAuthn.RPOrigins,
		Timeout:       time.Duration(c.WebAuthn.TimeoutSeconds) * time.Second,
	}
}

// RateLimitSettings builds the limiter configuration.
func (c *Config) RateLimitSettings() *ratelimit.Config {
	return &ratelimit.Config{
		Enabled:           c.RateLimit.Enabled,
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Burst:             c.RateLimit.Burst,
	}
}

// ChallengeTTL returns the pending-challenge lifetime.
func (c *Config) ChallengeTTL() time.Duration {
	return time.Duration(c.Challenge.TTLMinutes) * time.Minute
}

// ChallengeCleanupInterval returns how often expired challenges are swept.
func (c *Config) ChallengeCleanupInterval() time.Duration {
	return time.Duration(c.Challenge.CleanupIntervalSeconds) * time.Second
}

// SessionTTL returns the session token lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}
