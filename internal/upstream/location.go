// Package upstream - location.go rewrites redirect targets.
package upstream

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// LocationRewriter keeps internal hostnames out of redirect targets.
type LocationRewriter struct {
	internalHosts map[string]bool
	hostPorts     map[string]bool
}

// NewLocationRewriter builds a rewriter. hosts are bare hostnames that are always
// internal; hostPorts are "host:port" pairs of the proxied services.
func NewLocationRewriter(hosts []string, hostPorts []string) *LocationRewriter {
	lr := &LocationRewriter{
		internalHosts: make(map[string]bool),
		hostPorts:     make(map[string]bool),
	}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			lr.internalHosts[h] = true
		}
	}
	for _, hp := range hostPorts {
		if hp = strings.ToLower(strings.TrimSpace(hp)); hp != "" {
			lr.hostPorts[hp] = true
		}
	}
	return lr
}

// Rewrite maps an absolute Location on an internal host to the public origin of r.
// Relative and external locations are returned unchanged.
func (lr *LocationRewriter) Rewrite(location string, r *http.Request) string {
	if location == "" || strings.HasPrefix(location, "/") {
		return location
	}
	u, err := url.Parse(location)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return location
	}

	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if !lr.internalHosts[hostname] && !lr.hostPorts[net.JoinHostPort(hostname, port)] {
		return location
	}

	u.Scheme = ForwardedProto(r)
	u.Host = PublicHost(r)
	return u.String()
}

// RewriteHeader rewrites the Location header in place, if present.
func (lr *LocationRewriter) RewriteHeader(h http.Header, r *http.Request) {
	if loc := h.Get("Location"); loc != "" {
		h.Set("Location", lr.Rewrite(loc, r))
	}
}

// HostPort formats a host and port for NewLocationRewriter.
func HostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
