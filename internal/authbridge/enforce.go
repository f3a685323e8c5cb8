// Package authbridge - enforce.go sends anonymous UI page loads to the login page.
package authbridge

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/legalchat/auth-gateway/internal/cookies"
	"github.com/legalchat/auth-gateway/internal/upstream"
)

var uiRoutePattern = regexp.MustCompile(`(?i)(?:^|/)(chat|welcome|settings)(?:/|$)`)

// IsUIRoute reports whether path is a page of the chat UI.
func IsUIRoute(path string) bool {
	return path == "/" || uiRoutePattern.MatchString(path)
}

// IsHelperHost reports whether the request arrived on the helper listener whose
// root always shows the login page.
func IsHelperHost(r *http.Request, suffix string) bool {
	return suffix != "" && strings.HasSuffix(upstream.PublicHost(r), suffix)
}

// ShouldEnforceLogin reports whether a GET on a UI route must be redirected to
// /login because it carries no session cookie at all.
func ShouldEnforceLogin(r *http.Request, helperSuffix string) bool {
	if r.Method != http.MethodGet {
		return false
	}
	path := r.URL.Path
	if !IsUIRoute(path) || path == "/login" {
		return false
	}
	if IsHelperHost(r, helperSuffix) {
		return false
	}
	return !cookies.HasSession(r.Header.Get("Cookie"))
}

// LoginRedirectLocation is /login with the original public URL as callbackUrl.
func LoginRedirectLocation(r *http.Request) string {
	callback := upstream.PublicOrigin(r) + upstream.URI(r)
	return "/login?callbackUrl=" + url.QueryEscape(callback)
}
