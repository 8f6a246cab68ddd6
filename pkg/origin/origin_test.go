package origin

import (
	"testing"

	"github.com/jvreagan/shipyard/pkg/types"
)

func TestSchemeFor(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost:9000", "http"},
		{"localhost:8001", "http"},
		{"example.com", "https"},
		{"my.localhost:8001.example.com", "http"},
		{"localhost", "https"},
		{"localhost:", "https"},
		{"localhost:abc", "https"},
		{"127.0.0.1:8001", "https"},
		{"", "https"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := SchemeFor(tt.host); got != tt.want {
				t.Errorf("SchemeFor(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestNewNormalizesHost(t *testing.T) {
	tests := map[string]string{
		"":                          DefaultReverseProxyHost,
		"  ":                        DefaultReverseProxyHost,
		"apps.example.com":          "apps.example.com",
		"https://apps.example.com/": "apps.example.com",
		"http://localhost:8001":     "localhost:8001",
	}
	for in, want := range tests {
		if got := New(in).ReverseProxyHost; got != want {
			t.Errorf("New(%q).ReverseProxyHost = %q, want %q", in, got, want)
		}
	}
}

func TestSiteURL(t *testing.T) {
	custom := "www.acme.dev"

	tests := []struct {
		name    string
		proxy   string
		project *types.Project
		want    string
	}{
		{
			name:    "local proxy",
			proxy:   "localhost:8001",
			project: &types.Project{SubDomain: "blue-fox"},
			want:    "http://blue-fox.localhost:8001",
		},
		{
			name:    "public proxy",
			proxy:   "apps.example.com",
			project: &types.Project{SubDomain: "blue-fox"},
			want:    "https://blue-fox.apps.example.com",
		},
		{
			name:    "custom domain wins",
			proxy:   "localhost:8001",
			project: &types.Project{SubDomain: "blue-fox", CustomDomain: &custom},
			want:    "https://blue-fox.www.acme.dev",
		},
		{
			name:    "no subdomain",
			proxy:   "apps.example.com",
			project: &types.Project{},
			want:    "",
		},
		{
			name:    "nil project",
			proxy:   "apps.example.com",
			project: nil,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.proxy).SiteURL(tt.project); got != tt.want {
				t.Errorf("SiteURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
