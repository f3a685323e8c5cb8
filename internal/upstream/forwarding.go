// Package upstream - forwarding.go derives the public origin and the headers
// passed on to upstreams.
package upstream

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ForwardedProto returns the first X-Forwarded-Proto value, defaulting to http.
func ForwardedProto(r *http.Request) string {
	if v := firstValue(r.Header.Get("X-Forwarded-Proto")); v != "" {
		return v
	}
	return "http"
}

// PublicHost returns the first X-Forwarded-Host value, falling back to Host.
func PublicHost(r *http.Request) string {
	if v := firstValue(r.Header.Get("X-Forwarded-Host")); v != "" {
		return v
	}
	return r.Host
}

// PublicOrigin is proto://host as seen by the browser.
func PublicOrigin(r *http.Request) string {
	return ForwardedProto(r) + "://" + PublicHost(r)
}

// HostWithoutPort lowercases host and strips a trailing :port.
func HostWithoutPort(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndexByte(host, ':'); i != -1 && !strings.Contains(host[i:], "]") {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			return host[:i]
		}
	}
	return host
}

func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// ForwardHeaders clones the inbound headers for an upstream call, pinning Host and
// the X-Forwarded-Host/Proto pair. When the body was replaced, Content-Length is
// recalculated by the transport, so stale length/encoding headers are dropped.
func ForwardHeaders(r *http.Request) http.Header {
	h := r.Header.Clone()
	if r.Host != "" {
		h.Set("Host", r.Host)
	} else {
		h.Set("Host", PublicHost(r))
	}
	h.Set("X-Forwarded-Host", PublicHost(r))
	h.Set("X-Forwarded-Proto", ForwardedProto(r))
	h.Del("Content-Length")
	h.Del("Transfer-Encoding")
	return h
}

// URI returns the request path plus query exactly as received.
func URI(r *http.Request) string {
	if r.URL == nil {
		return "/"
	}
	if r.RequestURI != "" && !strings.HasPrefix(r.RequestURI, "http") {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

// ParseRequestURL resolves the request URI against the public origin.
func ParseRequestURL(r *http.Request) *url.URL {
	u, err := url.Parse(PublicOrigin(r) + URI(r))
	if err != nil {
		return &url.URL{Scheme: ForwardedProto(r), Host: PublicHost(r), Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	}
	return u
}
