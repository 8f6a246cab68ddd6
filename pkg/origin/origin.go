// Package origin builds the externally visited URL of a deployed project.
package origin

import (
	"regexp"
	"strings"

	"github.com/jvreagan/shipyard/pkg/types"
)

// DefaultReverseProxyHost is used when no reverse-proxy host is configured.
const DefaultReverseProxyHost = "localhost:8001"

var localhostPort = regexp.MustCompile(`localhost:\d+`)

// SchemeFor returns "http" when host contains "localhost:<port>" anywhere in
// the string and "https" otherwise.
func SchemeFor(host string) string {
	if localhostPort.MatchString(host) {
		return "http"
	}
	return "https"
}

// Resolver turns projects into site URLs using the configured reverse-proxy
// host.
type Resolver struct {
	ReverseProxyHost string
}

// New returns a Resolver for the given reverse-proxy host.
func New(reverseProxyHost string) *Resolver {
	host := strings.TrimSpace(reverseProxyHost)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = DefaultReverseProxyHost
	}
	return &Resolver{ReverseProxyHost: host}
}

// HostFor returns the project's custom domain, or the reverse-proxy host.
func (r *Resolver) HostFor(p *types.Project) string {
	if d := p.Domain(); d != "" {
		return d
	}
	return r.ReverseProxyHost
}

// SiteURL returns scheme://<subdomain>.<host> for the project, or "" if the
// project has no subdomain yet.
func (r *Resolver) SiteURL(p *types.Project) string {
	if p == nil || p.SubDomain == "" {
		return ""
	}
	host := r.HostFor(p)
	return SchemeFor(host) + "://" + p.SubDomain + "." + host
}
