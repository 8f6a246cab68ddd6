// Package config provides types and functions for loading and validating the
// shipyard client configuration. Configuration is a YAML file, optionally
// supplemented by a .env file and SHIPYARD_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultAPIURL           = "http://localhost:9000"
	DefaultReverseProxyHost = "localhost:8001"
	DefaultPollInterval     = 7000 * time.Millisecond
	DefaultTimeout          = 15 * time.Second
	DefaultTokenEnvVar      = "SHIPYARD_TOKEN"
	DefaultCacheTTL         = 5 * time.Minute
)

// Config is the complete client configuration.
//
// Example:
//
//	api:
//	  url: https://api.example.com
//	reverse_proxy:
//	  host: apps.example.com
//	credentials:
//	  source: file
type Config struct {
	// API is the remote deployment platform
	API APIConfig `yaml:"api"`

	// ReverseProxy is used to build "visit site" URLs
	ReverseProxy ReverseProxyConfig `yaml:"reverse_proxy"`

	// Poll controls the status poller
	Poll PollConfig `yaml:"poll"`

	// Credentials selects where bearer tokens come from
	Credentials CredentialsConfig `yaml:"credentials"`

	// Archive configures log archival to object storage - optional
	Archive ArchiveConfig `yaml:"archive,omitempty"`

	// Logging configures the process logger
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig locates the remote system.
type APIConfig struct {
	// URL is the base origin, e.g. http://localhost:9000
	URL string `yaml:"url"`

	// Timeout bounds a single request
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ReverseProxyConfig is the host deployed sites are served under.
type ReverseProxyConfig struct {
	Host string `yaml:"host"`
}

// PollConfig controls the status poller cadence. The platform expects
// DefaultPollInterval; shorter values are for local platforms and tests.
type PollConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
}

// CredentialsConfig selects a credential source.
type CredentialsConfig struct {
	// Source is one of: none, static, environment, file, vault, secrets-manager, oauth2
	Source string `yaml:"source"`

	// Token is used by the static source. Prefer any other source.
	Token string `yaml:"token,omitempty"`

	// EnvVar names the variable read by the environment source
	EnvVar string `yaml:"env_var,omitempty"`

	// SessionFile is read by the file source and written by "shipyard login"
	SessionFile string `yaml:"session_file,omitempty"`

	// CacheTTL bounds how long remote-backed tokens are reused
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`

	Vault          *VaultConfig          `yaml:"vault,omitempty"`
	SecretsManager *SecretsManagerConfig `yaml:"secrets_manager,omitempty"`
	OAuth2         *OAuth2Config         `yaml:"oauth2,omitempty"`
}

// VaultConfig points at a KV v2 secret holding the API token.
type VaultConfig struct {
	Address       string `yaml:"address"`
	AuthMethod    string `yaml:"auth_method"` // token or approle
	Token         string `yaml:"token,omitempty"`
	RoleID        string `yaml:"role_id,omitempty"`
	SecretID      string `yaml:"secret_id,omitempty"`
	Path          string `yaml:"path"` // e.g. secret/data/shipyard
	Key           string `yaml:"key,omitempty"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify,omitempty"`
}

// SecretsManagerConfig points at an AWS Secrets Manager secret.
type SecretsManagerConfig struct {
	SecretID string `yaml:"secret_id"`
	Region   string `yaml:"region,omitempty"`

	// Key selects a field when the secret is a JSON object
	Key string `yaml:"key,omitempty"`
}

// OAuth2Config configures a client-credentials token exchange.
type OAuth2Config struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// ArchiveConfig selects where finished deployment logs are archived.
type ArchiveConfig struct {
	// Provider is one of: aws, gcp, azure. Empty disables archiving.
	Provider string `yaml:"provider,omitempty"`

	// Bucket is the S3 bucket, GCS bucket or Azure container
	Bucket string `yaml:"bucket,omitempty"`

	// Prefix is prepended to every object key
	Prefix string `yaml:"prefix,omitempty"`

	// Region is used by the AWS provider
	Region string `yaml:"region,omitempty"`

	AWS   *AWSArchiveConfig   `yaml:"aws,omitempty"`
	GCP   *GCPArchiveConfig   `yaml:"gcp,omitempty"`
	Azure *AzureArchiveConfig `yaml:"azure,omitempty"`
}

// AWSArchiveConfig holds optional static credentials. Without them the AWS
// default credential chain is used.
type AWSArchiveConfig struct {
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// GCPArchiveConfig configures Cloud Storage and the optional Cloud Logging
// mirror.
type GCPArchiveConfig struct {
	ProjectID             string `yaml:"project_id,omitempty"`
	ServiceAccountKeyPath string `yaml:"service_account_key_path,omitempty"`
	ServiceAccountKeyJSON string `yaml:"service_account_key_json,omitempty"`

	// LogName enables mirroring each log line to Cloud Logging
	LogName string `yaml:"log_name,omitempty"`
}

// AzureArchiveConfig configures Azure Blob Storage. Without a service
// principal the default Azure credential chain is used.
type AzureArchiveConfig struct {
	AccountURL   string `yaml:"account_url"`
	TenantID     string `yaml:"tenant_id,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // auto, json or text
}

// Default returns a configuration pointing at a local platform.
func Default() *Config {
	return &Config{
		API:          APIConfig{URL: DefaultAPIURL, Timeout: DefaultTimeout},
		ReverseProxy: ReverseProxyConfig{Host: DefaultReverseProxyHost},
		Poll:         PollConfig{Interval: DefaultPollInterval},
		Credentials:  CredentialsConfig{Source: "file"},
		Logging:      LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Load reads a config file from disk, applies defaults and environment
// overrides, and validates it.
//
// Example:
//
//	cfg, err := config.Load("shipyard.yaml")
//	if err != nil {
//	  log.Fatal(err)
//	}
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return finish(cfg)
}

// Resolve loads filename when it is non-empty and otherwise starts from
// Default. Either way a .env file in the working directory is honored.
func Resolve(filename string) (*Config, error) {
	_ = godotenv.Load()

	if filename != "" {
		return Load(filename)
	}
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv lets SHIPYARD_* variables override file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("SHIPYARD_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("SHIPYARD_REVERSE_PROXY_URL"); v != "" {
		c.ReverseProxy.Host = v
	}
	if v := os.Getenv("SHIPYARD_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Poll.Interval = d
		}
	}
	if v := os.Getenv("SHIPYARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.API.URL == "" {
		c.API.URL = DefaultAPIURL
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.ReverseProxy.Host == "" {
		c.ReverseProxy.Host = DefaultReverseProxyHost
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = DefaultPollInterval
	}
	if c.Credentials.Source == "" {
		c.Credentials.Source = "file"
	}
	if c.Credentials.EnvVar == "" {
		c.Credentials.EnvVar = DefaultTokenEnvVar
	}
	if c.Credentials.CacheTTL <= 0 {
		c.Credentials.CacheTTL = DefaultCacheTTL
	}
}

// Validate checks that required fields are present and values are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.url must be an http or https URL, got %q", c.API.URL)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}

	switch c.Credentials.Source {
	case "none", "file", "environment":
	case "static":
		if strings.TrimSpace(c.Credentials.Token) == "" {
			return fmt.Errorf("credentials.token is required for the static source")
		}
	case "vault":
		v := c.Credentials.Vault
		if v == nil || v.Address == "" || v.Path == "" {
			return fmt.Errorf("credentials.vault.address and credentials.vault.path are required for the vault source")
		}
	case "secrets-manager":
		if c.Credentials.SecretsManager == nil || c.Credentials.SecretsManager.SecretID == "" {
			return fmt.Errorf("credentials.secrets_manager.secret_id is required for the secrets-manager source")
		}
	case "oauth2":
		o := c.Credentials.OAuth2
		if o == nil || o.TokenURL == "" || o.ClientID == "" {
			return fmt.Errorf("credentials.oauth2.token_url and credentials.oauth2.client_id are required for the oauth2 source")
		}
	default:
		return fmt.Errorf("unknown credentials source: %s", c.Credentials.Source)
	}

	switch c.Archive.Provider {
	case "":
	case "aws", "gcp":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the %s archive provider", c.Archive.Provider)
		}
	case "azure":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket (container name) is required for the azure archive provider")
		}
		if c.Archive.Azure == nil || c.Archive.Azure.AccountURL == "" {
			return fmt.Errorf("archive.azure.account_url is required for the azure archive provider")
		}
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}

	switch c.Logging.Format {
	case "", "auto", "json", "text":
	default:
		return fmt.Errorf("logging.format must be auto, json or text, got %q", c.Logging.Format)
	}

	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
