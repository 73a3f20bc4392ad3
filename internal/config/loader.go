package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/inbox/internal/storage"
	"github.com/mattjoyce/inbox/internal/webhook"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// envOverlay names the environment variables that override file values.
type envOverlay struct {
	Secret   string `envconfig:"WEBHOOK_SECRET"`
	Listen   string `envconfig:"INBOX_LISTEN"`
	Driver   string `envconfig:"INBOX_STORE_DRIVER"`
	DSN      string `envconfig:"INBOX_STORE_DSN"`
	LogLevel string `envconfig:"INBOX_LOG_LEVEL"`
}

// Load builds and validates the configuration. See Read.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds the configuration without validating it: defaults, then the
// YAML file at path (if path is non-empty), then environment overrides.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
		cfg.SourcePath = absPath
		cfg.SourceHash = hashBytes(data)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over Defaults after expanding ${VAR} references. It does
// not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Webhook.Secret, env.Secret)
	override(&cfg.HTTP.Listen, env.Listen)
	override(&cfg.Store.Driver, env.Driver)
	override(&cfg.Store.DSN, env.DSN)
	override(&cfg.Service.LogLevel, env.LogLevel)
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and rejected by Validate.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// UnresolvedEnvVar returns the name of the first ${VAR} left in s, or "".
func UnresolvedEnvVar(s string) string {
	if m := envVarPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", c.Service.LogLevel)
	}

	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 || c.HTTP.IdleTimeout < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}

	if name := UnresolvedEnvVar(c.Webhook.Secret); name != "" {
		return fmt.Errorf("webhook.secret: environment variable ${%s} is not set", name)
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required (set it in the config file or via WEBHOOK_SECRET)")
	}
	if strings.TrimSpace(c.Webhook.SignatureHeader) == "" {
		return fmt.Errorf("webhook.signature_header must not be empty")
	}
	if _, err := c.MaxBodyBytes(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case storage.DriverSQLite, storage.DriverPostgres, storage.DriverBadger:
	default:
		return fmt.Errorf("store.driver must be one of: %s (got %q)", strings.Join(storage.Drivers, ", "), c.Store.Driver)
	}
	if name := UnresolvedEnvVar(c.Store.DSN); name != "" {
		return fmt.Errorf("store.dsn: environment variable ${%s} is not set", name)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}

	if c.Query.MaxLimit <= 0 {
		return fmt.Errorf("query.max_limit must be positive")
	}
	if c.Query.DefaultLimit <= 0 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query.default_limit must be between 1 and query.max_limit (%d)", c.Query.MaxLimit)
	}
	return nil
}

// MaxBodyBytes returns webhook.max_body_size in bytes.
func (c *Config) MaxBodyBytes() (int64, error) {
	n, err := webhook.ParseMaxBodySize(c.Webhook.MaxBodySize)
	if err != nil {
		return 0, fmt.Errorf("webhook.max_body_size %q: %w", c.Webhook.MaxBodySize, err)
	}
	return n, nil
}
