package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeVault serves a single KV v2 secret and an AppRole login endpoint.
func fakeVault(t *testing.T, secret map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/auth/approle/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["role_id"] != "role" || body["secret_id"] != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"errors":["invalid role or secret ID"]}`))
				return
			}
			_, _ = w.Write([]byte(`{"auth":{"client_token":"approle-token"}}`))
		case "/v1/secret/data/shipyard":
			tok := r.Header.Get("X-Vault-Token")
			if tok != "root" && tok != "approle-token" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"data": secret}})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientRequiresAddress(t *testing.T) {
	if _, err := NewClient(&Config{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestAuthenticate(t *testing.T) {
	srv := fakeVault(t, nil)

	tests := []struct {
		name     string
		auth     AuthConfig
		errorMsg string
	}{
		{name: "token", auth: AuthConfig{Method: "token", Token: "root"}},
		{name: "default method is token", auth: AuthConfig{Token: "root"}},
		{name: "token missing", auth: AuthConfig{Method: "token"}, errorMsg: "vault token is required"},
		{name: "approle", auth: AuthConfig{Method: "approle", RoleID: "role", SecretID: "secret"}},
		{name: "approle missing secret", auth: AuthConfig{Method: "approle", RoleID: "role"}, errorMsg: "secret_id is required"},
		{name: "approle rejected", auth: AuthConfig{Method: "approle", RoleID: "role", SecretID: "wrong"}, errorMsg: "approle login failed"},
		{name: "unsupported", auth: AuthConfig{Method: "kubernetes"}, errorMsg: "unsupported auth method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(&Config{Address: srv.URL, Auth: tt.auth})
			if err != nil {
				t.Fatalf("NewClient() error: %v", err)
			}
			err = c.Authenticate(context.Background())
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Authenticate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Authenticate() error = %v, want containing %q", err, tt.errorMsg)
			}
		})
	}
}

func TestToken(t *testing.T) {
	srv := fakeVault(t, map[string]any{"token": "api-token-1", "api_token": "api-token-2", "port": 8080})
	ctx := context.Background()

	c, err := NewClient(&Config{Address: srv.URL, Auth: AuthConfig{Method: "approle", RoleID: "role", SecretID: "secret"}})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	got, err := c.Token(ctx, "secret/data/shipyard", "")
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if got != "api-token-1" {
		t.Errorf("Token() = %q, want api-token-1", got)
	}

	got, err = c.Token(ctx, "secret/data/shipyard", "api_token")
	if err != nil || got != "api-token-2" {
		t.Errorf("Token(api_token) = %q, %v", got, err)
	}

	if _, err := c.Token(ctx, "secret/data/shipyard", "missing"); err == nil || !strings.Contains(err.Error(), "key missing not found") {
		t.Errorf("expected missing key error, got %v", err)
	}
	if _, err := c.Token(ctx, "secret/data/shipyard", "port"); err == nil || !strings.Contains(err.Error(), "is not a string") {
		t.Errorf("expected non-string error, got %v", err)
	}
}

func TestGetSecretNotFound(t *testing.T) {
	srv := fakeVault(t, nil)

	c, err := NewClient(&Config{Address: srv.URL, Auth: AuthConfig{Token: "root"}})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if _, err := c.Token(context.Background(), "secret/data/other", ""); err == nil {
		t.Error("expected error for unknown path")
	}
}
