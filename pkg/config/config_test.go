package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv keeps developer SHIPYARD_* variables from leaking into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SHIPYARD_API_URL", "SHIPYARD_REVERSE_PROXY_URL", "SHIPYARD_POLL_INTERVAL", "SHIPYARD_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shipyard.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name        string
		content     string
		shouldError bool
		errorMsg    string
	}{
		{
			name: "minimal config",
			content: `api:
  url: http://localhost:9000
`,
		},
		{
			name: "vault credentials",
			content: `api:
  url: https://api.example.com
credentials:
  source: vault
  vault:
    address: https://vault.example.com:8200
    auth_method: token
    token: s.xyz
    path: secret/data/shipyard
    key: api_token
`,
		},
		{
			name: "gcp archive",
			content: `archive:
  provider: gcp
  bucket: shipyard-logs
  gcp:
    project_id: test-project
    log_name: shipyard-deployments
`,
		},
		{
			name: "invalid YAML",
			content: `invalid: yaml: content:
  - not: properly
  formatted
`,
			shouldError: true,
			errorMsg:    "failed to parse config",
		},
		{
			name: "non-http api url",
			content: `api:
  url: ftp://example.com
`,
			shouldError: true,
			errorMsg:    "api.url must be an http or https URL",
		},
		{
			name: "unknown credentials source",
			content: `credentials:
  source: keychain
`,
			shouldError: true,
			errorMsg:    "unknown credentials source: keychain",
		},
		{
			name: "static without token",
			content: `credentials:
  source: static
`,
			shouldError: true,
			errorMsg:    "credentials.token is required",
		},
		{
			name: "secrets manager without id",
			content: `credentials:
  source: secrets-manager
  secrets_manager:
    region: us-east-1
`,
			shouldError: true,
			errorMsg:    "credentials.secrets_manager.secret_id is required",
		},
		{
			name: "azure archive without account url",
			content: `archive:
  provider: azure
  bucket: logs
`,
			shouldError: true,
			errorMsg:    "archive.azure.account_url is required",
		},
		{
			name: "unknown archive provider",
			content: `archive:
  provider: digitalocean
  bucket: logs
`,
			shouldError: true,
			errorMsg:    "unknown archive provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))

			if tt.shouldError {
				if err == nil {
					t.Errorf("Expected error containing '%s', but got none", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got: %v", tt.errorMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if cfg == nil {
				t.Fatal("Expected config to be non-nil")
			}
		})
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/path/to/nonexistent/shipyard.yaml")
	if err == nil {
		t.Fatal("Expected error when loading non-existent file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected 'failed to read config file' error, got: %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.URL != DefaultAPIURL {
		t.Errorf("API.URL = %q, want %q", cfg.API.URL, DefaultAPIURL)
	}
	if cfg.API.Timeout != DefaultTimeout {
		t.Errorf("API.Timeout = %v, want %v", cfg.API.Timeout, DefaultTimeout)
	}
	if cfg.ReverseProxy.Host != DefaultReverseProxyHost {
		t.Errorf("ReverseProxy.Host = %q, want %q", cfg.ReverseProxy.Host, DefaultReverseProxyHost)
	}
	if cfg.Poll.Interval != 7*time.Second {
		t.Errorf("Poll.Interval = %v, want 7s", cfg.Poll.Interval)
	}
	if cfg.Credentials.Source != "file" {
		t.Errorf("Credentials.Source = %q, want file", cfg.Credentials.Source)
	}
	if cfg.Credentials.EnvVar != DefaultTokenEnvVar {
		t.Errorf("Credentials.EnvVar = %q, want %q", cfg.Credentials.EnvVar, DefaultTokenEnvVar)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadDurations(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `api:
  url: https://api.example.com
  timeout: 30s
poll:
  interval: 2s
credentials:
  source: oauth2
  cache_ttl: 1m
  oauth2:
    token_url: https://auth.example.com/token
    client_id: shipyard
    client_secret: s3cret
    scopes: [deployments]
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Poll.Interval != 2*time.Second {
		t.Errorf("Poll.Interval = %v", cfg.Poll.Interval)
	}
	if cfg.Credentials.CacheTTL != time.Minute {
		t.Errorf("Credentials.CacheTTL = %v", cfg.Credentials.CacheTTL)
	}
	if got := cfg.Credentials.OAuth2.Scopes; len(got) != 1 || got[0] != "deployments" {
		t.Errorf("OAuth2.Scopes = %v", got)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SHIPYARD_API_URL", "https://override.example.com")
	t.Setenv("SHIPYARD_REVERSE_PROXY_URL", "apps.example.com")
	t.Setenv("SHIPYARD_POLL_INTERVAL", "3s")
	t.Setenv("SHIPYARD_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "api:\n  url: http://localhost:9000\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.URL != "https://override.example.com" {
		t.Errorf("API.URL = %q", cfg.API.URL)
	}
	if cfg.ReverseProxy.Host != "apps.example.com" {
		t.Errorf("ReverseProxy.Host = %q", cfg.ReverseProxy.Host)
	}
	if cfg.Poll.Interval != 3*time.Second {
		t.Errorf("Poll.Interval = %v", cfg.Poll.Interval)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestResolveWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if cfg.API.URL != DefaultAPIURL {
		t.Errorf("API.URL = %q, want %q", cfg.API.URL, DefaultAPIURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		shouldError bool
		errorMsg    string
	}{
		{
			name:   "default",
			mutate: func(*Config) {},
		},
		{
			name: "vault missing path",
			mutate: func(c *Config) {
				c.Credentials.Source = "vault"
				c.Credentials.Vault = &VaultConfig{Address: "https://vault:8200"}
			},
			shouldError: true,
			errorMsg:    "credentials.vault.address and credentials.vault.path are required",
		},
		{
			name: "oauth2 missing block",
			mutate: func(c *Config) {
				c.Credentials.Source = "oauth2"
			},
			shouldError: true,
			errorMsg:    "credentials.oauth2.token_url",
		},
		{
			name: "aws archive missing bucket",
			mutate: func(c *Config) {
				c.Archive.Provider = "aws"
			},
			shouldError: true,
			errorMsg:    "archive.bucket is required for the aws archive provider",
		},
		{
			name: "bad log format",
			mutate: func(c *Config) {
				c.Logging.Format = "xml"
			},
			shouldError: true,
			errorMsg:    "logging.format must be auto, json or text",
		},
		{
			name: "zero poll interval",
			mutate: func(c *Config) {
				c.Poll.Interval = 0
			},
			shouldError: true,
			errorMsg:    "poll.interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.shouldError {
				if err == nil {
					t.Errorf("Expected error containing '%s', but got none", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got: %v", tt.errorMsg, err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestMarshalRoundTripsThroughLoad(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.ReverseProxy.Host = "apps.example.com"
	cfg.Archive = ArchiveConfig{Provider: "aws", Bucket: "logs", Region: "us-west-2"}

	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	loaded, err := Load(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("Load() error: %v\n%s", err, data)
	}
	if loaded.ReverseProxy.Host != "apps.example.com" || loaded.Archive.Bucket != "logs" {
		t.Errorf("loaded = %+v", loaded)
	}
}
