// Request classification - which lane a path belongs to.
//
// DESIGN: Pure predicates over method, path and host, used as mux matchers:
//   - isSigninGetPath():     provider sign-in GETs that need a CSRF POST
//   - isFileCreatePath():    tRPC batches containing file.createFile
//   - isSendMessagePath():   tRPC batches containing aiChat.sendMessageInServer
//   - isPageRequest():       first-party HTML pages that get branded
package gateway

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/legalchat/auth-gateway/internal/upstream"
)

var (
	signinGetPattern   = regexp.MustCompile(`^/(?:api/auth|next-auth)/signin/[^/]+$`)
	signoutPattern     = regexp.MustCompile(`^/(?:api/auth|next-auth)/signout/?$`)
	fileCreatePattern  = regexp.MustCompile(`(?:^|/)trpc/(?:lambda|edge|async|mobile)/(?:.*,)?file\.createFile(?:,|$)`)
	sendMessagePattern = regexp.MustCompile(`(?:^|/)trpc/(?:lambda|edge|async|mobile)/.*aiChat\.sendMessageInServer(?:,|$)`)
	anyTTSPattern      = regexp.MustCompile(`(?:^|/)webapi/tts(?:/|$)`)
	openAITTSPattern   = regexp.MustCompile(`(?:^|/)webapi/tts/openai/?$`)
	uiPagePattern      = regexp.MustCompile(`(?i)(?:^|/)(?:chat|welcome|settings)(?:/|$)`)
	authPagePattern    = regexp.MustCompile(`(?i)^/next-auth/(?:signin|error)(?:/|$)`)
)

func isSigninGetPath(path string) bool { return signinGetPattern.MatchString(path) }
func isSignoutPath(path string) bool { return signoutPattern.MatchString(path) }
func isFileCreatePath(path string) bool { return fileCreatePattern.MatchString(path) }
func isSendMessagePath(path string) bool { return sendMessagePattern.MatchString(path) }
func isAnyTTSPath(path string) bool { return anyTTSPattern.MatchString(path) }
func isOpenAITTSPath(path string) bool { return openAITTSPattern.MatchString(path) }
func isLogoutPath(path string) bool { return path == "/logout" || path == "/signout" }
func isGetOrHead(r *http.Request) bool { return r.Method == http.MethodGet || r.Method == http.MethodHead }
func isUIPagePath(path string) bool { return path == "/" || uiPagePattern.MatchString(path) || authPagePattern.MatchString(path) }
func isPageRequest(r *http.Request) bool { return isGetOrHead(r) && isUIPagePath(r.URL.Path) }
func isHTMLResponse(h http.Header) bool { return strings.Contains(h.Get("Content-Type"), "text/html") }

// wantsJSONSignout reports whether a signout caller expects {"url": ...} instead
// of a redirect.
func wantsJSONSignout(r *http.Request) bool {
	return r.Method == http.MethodPost ||
		r.Header.Get("X-Auth-Return-Redirect") == "1" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// isLogtoBrandingHost reports whether the request targets a branded identity
// provider host.
func (g *Gateway) isLogtoBrandingHost(r *http.Request) bool {
	if !g.cfg.Logto.BrandingEnabled {
		return false
	}
	return g.brandingHosts[upstream.HostWithoutPort(upstream.PublicHost(r))]
}
