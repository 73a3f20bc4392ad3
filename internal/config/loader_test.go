package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable the overlay reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"WEBHOOK_SECRET", "INBOX_LISTEN", "INBOX_STORE_DRIVER", "INBOX_STORE_DSN", "INBOX_LOG_LEVEL", "INBOX_CONFIG"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "full file",
			yaml: `
service:
  log_level: debug
http:
  listen: 0.0.0.0:9000
  read_timeout: 3s
webhook:
  secret: s3cret
  signature_header: X-Hub-Signature-256
  max_body_size: 256KB
store:
  driver: badger
  dsn: /var/lib/inbox
query:
  default_limit: 20
  max_limit: 200
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Service.LogLevel)
				assert.Equal(t, "0.0.0.0:9000", cfg.HTTP.Listen)
				assert.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
				assert.Equal(t, 10*time.Second, cfg.HTTP.WriteTimeout)
				assert.Equal(t, "s3cret", cfg.Webhook.Secret)
				assert.Equal(t, "X-Hub-Signature-256", cfg.Webhook.SignatureHeader)
				n, err := cfg.MaxBodyBytes()
				require.NoError(t, err)
				assert.EqualValues(t, 256<<10, n)
				assert.Equal(t, "badger", cfg.Store.Driver)
				assert.Equal(t, 20, cfg.Query.DefaultLimit)
				assert.Equal(t, 200, cfg.Query.MaxLimit)
				assert.Len(t, cfg.SourceHash, 64)
			},
		},
		{
			name: "secret interpolated",
			yaml: "webhook:\n  secret: ${TEST_INBOX_SECRET}\n",
			env:  map[string]string{"TEST_INBOX_SECRET": "from-env"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-env", cfg.Webhook.Secret)
				assert.Equal(t, "sqlite", cfg.Store.Driver)
			},
		},
		{
			name:    "unresolved secret",
			yaml:    "webhook:\n  secret: ${TEST_INBOX_UNSET}\n",
			wantErr: "${TEST_INBOX_UNSET} is not set",
		},
		{
			name: "environment overrides file",
			yaml: "webhook:\n  secret: file\nstore:\n  driver: sqlite\n",
			env: map[string]string{
				"WEBHOOK_SECRET":     "env",
				"INBOX_STORE_DRIVER": "postgres",
				"INBOX_STORE_DSN":    "postgres://localhost/inbox",
				"INBOX_LISTEN":       ":7000",
				"INBOX_LOG_LEVEL":    "warn",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "env", cfg.Webhook.Secret)
				assert.Equal(t, "postgres", cfg.Store.Driver)
				assert.Equal(t, "postgres://localhost/inbox", cfg.Store.DSN)
				assert.Equal(t, ":7000", cfg.HTTP.Listen)
				assert.Equal(t, "warn", cfg.Service.LogLevel)
			},
		},
		{name: "missing secret", yaml: "service:\n  name: inbox\n", wantErr: "webhook.secret is required"},
		{name: "bad log level", yaml: "service:\n  log_level: loud\nwebhook:\n  secret: x\n", wantErr: "service.log_level"},
		{name: "bad driver", yaml: "webhook:\n  secret: x\nstore:\n  driver: mysql\n", wantErr: "store.driver must be one of"},
		{name: "bad body size", yaml: "webhook:\n  secret: x\n  max_body_size: huge\n", wantErr: "webhook.max_body_size"},
		{name: "default above max", yaml: "webhook:\n  secret: x\nquery:\n  default_limit: 500\n", wantErr: "query.default_limit"},
		{name: "malformed yaml", yaml: "webhook: [", wantErr: "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadWithoutFileUsesDefaultsAndEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEBHOOK_SECRET", "env-only")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Webhook.Secret)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Listen)
	assert.Equal(t, "./data/inbox.db", cfg.Store.DSN)
	assert.Empty(t, cfg.SourcePath)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestDiscover(t *testing.T) {
	clearEnv(t)

	explicit := writeConfig(t, "")
	got, err := Discover(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)

	_, err = Discover(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	fromEnv := writeConfig(t, "")
	t.Setenv("INBOX_CONFIG", fromEnv)
	got, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, fromEnv, got)

	t.Setenv("INBOX_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Discover("")
	assert.ErrorContains(t, err, "$INBOX_CONFIG")
}

func TestDiscoverSearchPaths(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	orig := SearchPaths
	t.Cleanup(func() { SearchPaths = orig })

	SearchPaths = []string{filepath.Join(dir, "first.yaml"), filepath.Join(dir, "second.yaml")}
	got, err := Discover("")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(SearchPaths[1], nil, 0o600))
	got, err = Discover("")
	require.NoError(t, err)
	assert.Equal(t, SearchPaths[1], got)
}
