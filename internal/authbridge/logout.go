// Package authbridge - logout.go expires the auth cookies and picks where the
// browser lands after sign-out.
//
// DESIGN: Two modes:
//   - local: a same-origin path on the app (the login page by default)
//   - oidc:  the identity provider's end-session endpoint
package authbridge

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/legalchat/auth-gateway/internal/cookies"
)

// Logout modes.
const (
	LogoutModeLocal = "local"
	LogoutModeOIDC  = "oidc"
)

// DefaultLocalLogoutRedirect is used when no local redirect is configured.
const DefaultLocalLogoutRedirect = "/login?logged_out=1"

// LogoutPolicy decides where a logout sends the browser.
type LogoutPolicy struct {
	Mode                string
	EndSessionEndpoint  string
	ClientID            string
	PostLogoutRedirect  string
	LocalLogoutRedirect string
	PublicURL           string
}

// LogoutCookies returns the Set-Cookie values that end every session variant.
// Expiry is unconditional and does not depend on the app being reachable.
func LogoutCookies() []string {
	return cookies.LogoutHeaders()
}

// SetLogoutHeaders adds the logout cookies and no-store to h.
func SetLogoutHeaders(h http.Header) {
	h.Set("Cache-Control", "no-store")
	for _, c := range LogoutCookies() {
		h.Add("Set-Cookie", c)
	}
}

// LogoutLocation is the redirect target for GET /logout and /signout.
// requested is the post_logout_redirect_uri query parameter, if any.
func (p LogoutPolicy) LogoutLocation(requested, publicOrigin string) string {
	if p.Mode != LogoutModeOIDC {
		target := requested
		if target == "" {
			target = p.LocalLogoutRedirect
		}
		return p.NormalizeLocalLocation(target, publicOrigin)
	}

	postLogout := requested
	if postLogout == "" {
		postLogout = p.PostLogoutRedirect
	}
	if postLogout == "" {
		postLogout = p.PublicURL
	}
	u, err := url.Parse(p.EndSessionEndpoint)
	if err != nil {
		return p.NormalizeLocalLocation(p.LocalLogoutRedirect, publicOrigin)
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", postLogout)
	if p.ClientID != "" {
		q.Set("client_id", p.ClientID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SignoutLocation is where the Auth.js signout endpoints are sent instead.
func (p LogoutPolicy) SignoutLocation(callbackURL, publicOrigin string) string {
	if p.Mode == LogoutModeOIDC {
		if callbackURL != "" {
			return "/logout?post_logout_redirect_uri=" + url.QueryEscape(callbackURL)
		}
		return "/logout"
	}
	return p.NormalizeLocalLocation(p.LocalLogoutRedirect, publicOrigin)
}

// NormalizeLocalLocation resolves input against the request origin and returns its
// path, query and fragment when it points at the app's public origin. Anything
// else falls back to the configured local redirect.
func (p LogoutPolicy) NormalizeLocalLocation(input, publicOrigin string) string {
	fallback := p.LocalLogoutRedirect
	if fallback == "" {
		fallback = DefaultLocalLogoutRedirect
	}
	raw := strings.TrimSpace(input)
	if raw == "" {
		return fallback
	}
	parsed, ok := resolve(raw, publicOrigin)
	if !ok {
		return fallback
	}
	app, err := url.Parse(p.PublicURL)
	if err != nil || origin(parsed) != origin(app) {
		return fallback
	}
	out := parsed.EscapedPath()
	if out == "" {
		out = "/"
	}
	if parsed.RawQuery != "" {
		out += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		out += "#" + parsed.EscapedFragment()
	}
	return out
}

// =============================================================================
// LOGIN LINKS
// =============================================================================

// SigninOptions shape a provider sign-in link.
type SigninOptions struct {
	ForcePrompt bool
	FirstScreen string
}

// ProviderSigninURL builds the Logto provider sign-in entry point for callbackURL.
func ProviderSigninURL(callbackURL string, opts SigninOptions) string {
	params := []pair{{"callbackUrl", callbackURL}}
	if opts.ForcePrompt {
		params = append(params, pair{"prompt", "login"}, pair{"max_age", "0"})
	}
	if opts.FirstScreen != "" {
		params = append(params, pair{"first_screen", opts.FirstScreen})
	}
	return "/api/auth/signin/logto?" + encodePairs(params)
}

// NormalizeCallbackURL keeps callbacks on the app origin; anything else becomes
// <app>/chat.
func NormalizeCallbackURL(input, appOrigin string) string {
	fallback := strings.TrimRight(appOrigin, "/") + "/chat"
	raw := strings.TrimSpace(input)
	if raw == "" {
		return fallback
	}
	parsed, ok := resolve(raw, appOrigin)
	if !ok {
		return fallback
	}
	fb, err := url.Parse(fallback)
	if err != nil || origin(parsed) != origin(fb) {
		return fallback
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String()
}

func resolve(raw, base string) (*url.URL, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return nil, false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	u := b.ResolveReference(ref)
	if u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

// origin is scheme://host with default ports dropped.
func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}
