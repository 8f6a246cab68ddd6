// Package vault reads the shipyard API token from HashiCorp Vault's KV v2
// secrets engine. Token and AppRole authentication are supported.
package vault

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// DefaultKey is the secret field read when no key is configured.
const DefaultKey = "token"

// Config holds Vault configuration including address and authentication details.
type Config struct {
	// Address is the Vault server address (e.g., "http://127.0.0.1:8200")
	Address string

	// Auth holds authentication configuration
	Auth AuthConfig

	// TLSSkipVerify skips TLS certificate verification (not recommended for production)
	TLSSkipVerify bool
}

// AuthConfig specifies the authentication method and credentials.
type AuthConfig struct {
	// Method is the auth method: "token" or "approle"
	Method string

	Token    string
	RoleID   string
	SecretID string
}

// Client wraps the Vault API client.
type Client struct {
	client        *vault.Client
	config        *Config
	authenticated bool
}

// NewClient creates a new Vault client with the given configuration.
// It does not authenticate yet.
//
// Example:
//
//	client, err := vault.NewClient(&vault.Config{
//	    Address: "http://127.0.0.1:8200",
//	    Auth:    vault.AuthConfig{Method: "token", Token: "hvs.xxx"},
//	})
func NewClient(config *Config) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address

	if config.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	return &Client{
		client: client,
		config: config,
	}, nil
}

// Authenticate authenticates to Vault using the configured auth method.
// An empty method is treated as "token".
func (c *Client) Authenticate(ctx context.Context) error {
	var err error
	switch c.config.Auth.Method {
	case "token", "":
		err = c.authenticateWithToken()
	case "approle":
		err = c.authenticateWithAppRole(ctx)
	default:
		err = fmt.Errorf("unsupported auth method: %s", c.config.Auth.Method)
	}
	if err == nil {
		c.authenticated = true
	}
	return err
}

func (c *Client) authenticateWithToken() error {
	if c.config.Auth.Token == "" {
		return fmt.Errorf("vault token is required for token authentication")
	}

	c.client.SetToken(c.config.Auth.Token)
	return nil
}

func (c *Client) authenticateWithAppRole(ctx context.Context) error {
	if c.config.Auth.RoleID == "" {
		return fmt.Errorf("role_id is required for approle authentication")
	}
	if c.config.Auth.SecretID == "" {
		return fmt.Errorf("secret_id is required for approle authentication")
	}

	data := map[string]interface{}{
		"role_id":   c.config.Auth.RoleID,
		"secret_id": c.config.Auth.SecretID,
	}

	resp, err := c.client.Logical().WriteWithContext(ctx, "auth/approle/login", data)
	if err != nil {
		return fmt.Errorf("approle login failed: %w", err)
	}

	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("approle login returned no auth token")
	}

	c.client.SetToken(resp.Auth.ClientToken)
	return nil
}

// GetSecret fetches one string field from a KV v2 secret.
//
// Note: For KV v2, the path must include "/data/" after the mount point.
// For example: "secret/data/shipyard" not "secret/shipyard"
func (c *Client) GetSecret(ctx context.Context, path, key string) (string, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret at %s: %w", path, err)
	}

	if secret == nil {
		return "", fmt.Errorf("secret not found at path: %s", path)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret format at path: %s", path)
	}

	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in secret at path: %s", key, path)
	}

	valueStr, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key %s is not a string at path: %s", key, path)
	}

	return valueStr, nil
}

// Token authenticates on first use and reads the API token stored at
// path/key. An empty key reads DefaultKey.
func (c *Client) Token(ctx context.Context, path, key string) (string, error) {
	if !c.authenticated {
		if err := c.Authenticate(ctx); err != nil {
			return "", err
		}
	}
	if key == "" {
		key = DefaultKey
	}
	return c.GetSecret(ctx, path, key)
}
