package config

import "time"

// Config is the root configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	HTTP    HTTPConfig    `yaml:"http"`
	Webhook WebhookConfig `yaml:"webhook"`
	Store   StoreConfig   `yaml:"store"`
	Query   QueryConfig   `yaml:"query"`

	// SourcePath and SourceHash describe the file Load read, if any.
	SourcePath string `yaml:"-"`
	SourceHash string `yaml:"-"`
}

// ServiceConfig holds process-wide settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// WebhookConfig holds delivery authentication settings.
type WebhookConfig struct {
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	// MaxBodySize accepts "1MB", "512KB" or a byte count.
	MaxBodySize string `yaml:"max_body_size"`
}

// StoreConfig selects the message store backend.
type StoreConfig struct {
	// Driver is one of sqlite, postgres, badger.
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite, a directory for badger and a
	// connection string for postgres.
	DSN string `yaml:"dsn"`
}

// QueryConfig bounds list pagination.
type QueryConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "inbox",
			LogLevel: "info",
		},
		HTTP: HTTPConfig{
			Listen:       "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Webhook: WebhookConfig{
			SignatureHeader: "X-Signature",
			MaxBodySize:     "1MB",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "./data/inbox.db",
		},
		Query: QueryConfig{
			DefaultLimit: 50,
			MaxLimit:     100,
		},
	}
}
