// Package credentials supplies the bearer token attached to API requests.
// A Source returns "" when no token is available; the request is then sent
// without an Authorization header.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jvreagan/shipyard/pkg/clock"
	"github.com/jvreagan/shipyard/pkg/config"
	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/vault"
)

// ErrUnknownSource is returned by NewSource for an unrecognized source name.
var ErrUnknownSource = errors.New("unknown credentials source")

// Source yields the current API token.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

// Token implements Source.
func (f SourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// None never supplies a token.
func None() Source {
	return SourceFunc(func(context.Context) (string, error) { return "", nil })
}

// Static always supplies token.
func Static(token string) Source {
	token = strings.TrimSpace(token)
	return SourceFunc(func(context.Context) (string, error) { return token, nil })
}

// Env reads the token from an environment variable on every call.
func Env(name string) Source {
	return SourceFunc(func(context.Context) (string, error) {
		return strings.TrimSpace(os.Getenv(name)), nil
	})
}

// Session is the on-disk record written by "shipyard login".
type Session struct {
	AccessToken string    `json:"access_token"`
	APIURL      string    `json:"api_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultSessionPath returns the session file location under the user's
// config directory.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "shipyard", "session.json"), nil
}

// SaveSession writes s to path with owner-only permissions.
func SaveSession(path string, s Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// ClearSession removes the session file. A missing file is not an error.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// File reads the session file on every call so a new login takes effect
// without restarting. A missing file means no token.
func File(path string) Source {
	return SourceFunc(func(context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to read session file: %w", err)
		}

		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("failed to parse session file %s: %w", path, err)
		}
		return strings.TrimSpace(s.AccessToken), nil
	})
}

type vaultSource struct {
	mu     sync.Mutex
	client *vault.Client
	path   string
	key    string
}

// Vault reads the token from a KV v2 secret.
func Vault(client *vault.Client, path, key string) Source {
	return &vaultSource{client: client, path: path, key: key}
}

func (s *vaultSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.client.Token(ctx, s.path, s.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	return strings.TrimSpace(token), nil
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type secretsManagerSource struct {
	client   SecretsManagerAPI
	secretID string
	key      string
}

// SecretsManager reads the token from an AWS Secrets Manager secret. With a
// key, the secret is parsed as a JSON object and that field is used;
// otherwise the whole secret string is the token.
func SecretsManager(client SecretsManagerAPI, secretID, key string) Source {
	return &secretsManagerSource{client: client, secretID: secretID, key: key}
}

func (s *secretsManagerSource) Token(ctx context.Context) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret %s: %w", s.secretID, err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", s.secretID)
	}

	if s.key == "" {
		return strings.TrimSpace(*result.SecretString), nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(*result.SecretString), &fields); err != nil {
		return "", fmt.Errorf("failed to parse secret JSON: %w", err)
	}
	value, ok := fields[s.key].(string)
	if !ok {
		return "", fmt.Errorf("key %s not found in secret %s", s.key, s.secretID)
	}
	return strings.TrimSpace(value), nil
}

type oauth2Source struct {
	ts oauth2.TokenSource
}

// OAuth2 exchanges client credentials for an access token and reuses it
// until it expires. ctx scopes the token endpoint HTTP client.
func OAuth2(ctx context.Context, cfg *config.OAuth2Config) Source {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &oauth2Source{ts: oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx))}
}

func (s *oauth2Source) Token(context.Context) (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", fmt.Errorf("oauth2 token exchange failed: %w", err)
	}
	return tok.AccessToken, nil
}

type cachedSource struct {
	mu        sync.Mutex
	src       Source
	ttl       time.Duration
	clk       clock.Clock
	token     string
	fetchedAt time.Time
}

// Cached reuses a non-empty token from src for ttl. Errors and empty tokens
// are never cached.
func Cached(src Source, ttl time.Duration, clk clock.Clock) Source {
	if clk == nil {
		clk = clock.Real()
	}
	return &cachedSource{src: src, ttl: ttl, clk: clk}
}

func (c *cachedSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clk.Now().Sub(c.fetchedAt) < c.ttl {
		return c.token, nil
	}

	token, err := c.src.Token(ctx)
	if err != nil {
		return "", err
	}
	if token != "" {
		c.token = token
		c.fetchedAt = c.clk.Now()
	}
	return token, nil
}

// NewSource builds the Source selected by cfg. Remote-backed sources are
// wrapped in Cached using cfg.CacheTTL.
func NewSource(ctx context.Context, cfg config.CredentialsConfig) (Source, error) {
	logging.Debug("configuring credentials source", "source", cfg.Source)

	switch cfg.Source {
	case "none":
		return None(), nil

	case "static":
		return Static(cfg.Token), nil

	case "environment":
		name := cfg.EnvVar
		if name == "" {
			name = config.DefaultTokenEnvVar
		}
		return Env(name), nil

	case "file", "":
		path := cfg.SessionFile
		if path == "" {
			var err error
			if path, err = DefaultSessionPath(); err != nil {
				return nil, err
			}
		}
		return File(path), nil

	case "vault":
		if cfg.Vault == nil {
			return nil, fmt.Errorf("vault source requires a vault configuration")
		}
		client, err := vault.NewClient(&vault.Config{
			Address: cfg.Vault.Address,
			Auth: vault.AuthConfig{
				Method:   cfg.Vault.AuthMethod,
				Token:    cfg.Vault.Token,
				RoleID:   cfg.Vault.RoleID,
				SecretID: cfg.Vault.SecretID,
			},
			TLSSkipVerify: cfg.Vault.TLSSkipVerify,
		})
		if err != nil {
			return nil, err
		}
		return Cached(Vault(client, cfg.Vault.Path, cfg.Vault.Key), cfg.CacheTTL, nil), nil

	case "secrets-manager":
		if cfg.SecretsManager == nil {
			return nil, fmt.Errorf("secrets-manager source requires a secrets_manager configuration")
		}
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.SecretsManager.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.SecretsManager.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		src := SecretsManager(secretsmanager.NewFromConfig(awsCfg), cfg.SecretsManager.SecretID, cfg.SecretsManager.Key)
		return Cached(src, cfg.CacheTTL, nil), nil

	case "oauth2":
		if cfg.OAuth2 == nil {
			return nil, fmt.Errorf("oauth2 source requires an oauth2 configuration")
		}
		return OAuth2(ctx, cfg.OAuth2), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, cfg.Source)
	}
}
