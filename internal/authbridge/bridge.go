// Package authbridge - bridge.go repairs the browser sign-in flow and validates sessions.
//
// DESIGN: The chat app's Auth.js provider sign-in handler only accepts a
// CSRF-protected POST, but browsers arrive with a plain GET. The bridge
// performs the missing round trip on the browser's behalf:
//   - GET  /api/auth/csrf with the caller's cookies -> csrfToken (+ new cookies)
//   - POST <original path> with csrfToken, callbackUrl and the other query params
//   - relay the upstream answer with Location rewritten to the public origin
//
// Session validation asks /api/auth/session every time; nothing is cached so a
// revoked session is noticed on the very next request.
package authbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/legalchat/auth-gateway/internal/cookies"
	"github.com/legalchat/auth-gateway/internal/upstream"
)

// Sentinel errors.
var (
	ErrCSRFUnavailable = errors.New("authbridge: csrf token unavailable")
	ErrNoSession       = errors.New("authbridge: no session cookie")
	ErrInvalidSession  = errors.New("authbridge: session rejected")
)

const (
	csrfPath    = "/api/auth/csrf"
	sessionPath = "/api/auth/session"

	signInUserAgent  = "lobe-auth-gateway"
	sessionUserAgent = "legalchat-mcp-auth-check"
)

// DefaultSessionTimeout bounds one session validation call.
const DefaultSessionTimeout = 3 * time.Second

// SessionInfo is the identity derived from a validated session.
type SessionInfo struct {
	Email string
	Roles []string
	User  json.RawMessage
}

// HasRole reports whether the session carries role (case-insensitive).
func (s *SessionInfo) HasRole(role string) bool {
	if s == nil {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Options configures a Bridge.
type Options struct {
	// PublicURL is the default callbackUrl for sign-in.
	PublicURL      string
	SessionTimeout time.Duration
}

// Bridge talks to the chat app's Auth.js endpoints.
type Bridge struct {
	client   *upstream.Client
	rewriter *upstream.LocationRewriter
	opts     Options
}

// New creates a bridge over the chat app client.
func New(client *upstream.Client, rewriter *upstream.LocationRewriter, opts Options) *Bridge {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	return &Bridge{client: client, rewriter: rewriter, opts: opts}
}

// =============================================================================
// SIGN-IN TRANSLATION
// =============================================================================

// TranslateSignIn turns a GET on a provider sign-in path into the CSRF-protected
// POST the app expects. The returned response has its Location rewritten.
// Any failure is returned as an error and is never retried.
func (b *Bridge) TranslateSignIn(ctx context.Context, r *http.Request) (*upstream.Response, error) {
	incoming := cookies.Parse(r.Header.Get("Cookie"))
	fwdHost := upstream.PublicHost(r)
	fwdProto := upstream.ForwardedProto(r)
	host := r.Host
	if host == "" {
		host = fwdHost
	}
	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = signInUserAgent
	}

	csrfHeader := http.Header{}
	csrfHeader.Set("Accept", "application/json")
	csrfHeader.Set("Cookie", incoming.String())
	csrfHeader.Set("Host", host)
	csrfHeader.Set("User-Agent", userAgent)
	csrfHeader.Set("X-Forwarded-Host", fwdHost)
	csrfHeader.Set("X-Forwarded-Proto", fwdProto)

	csrfResp, err := b.client.Do(ctx, upstream.Request{
		Method: http.MethodGet,
		URL:    csrfPath,
		Header: csrfHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCSRFUnavailable, err)
	}
	if !csrfResp.OK() {
		return nil, fmt.Errorf("%w: csrf request failed with status %d", ErrCSRFUnavailable, csrfResp.StatusCode)
	}
	if !gjson.ValidBytes(csrfResp.Body) {
		return nil, fmt.Errorf("%w: could not parse csrf response json", ErrCSRFUnavailable)
	}
	token := gjson.GetBytes(csrfResp.Body, "csrfToken").String()
	if token == "" {
		return nil, fmt.Errorf("%w: missing csrfToken in csrf response", ErrCSRFUnavailable)
	}

	jar := cookies.Merge(incoming, cookies.ParseSetCookie(csrfResp.Header.Values("Set-Cookie")))

	query := parseOrderedQuery(r.URL.RawQuery)
	callbackURL := firstValue(query, "callbackUrl")
	if callbackURL == "" {
		callbackURL = b.opts.PublicURL
	}
	form := []pair{{"csrfToken", token}, {"callbackUrl", callbackURL}}
	for _, p := range query {
		if p.key == "csrfToken" || p.key == "callbackUrl" {
			continue
		}
		form = append(form, p)
	}
	body := encodePairs(form)

	accept := r.Header.Get("Accept")
	if accept == "" {
		accept = "*/*"
	}
	postHeader := http.Header{}
	postHeader.Set("Accept", accept)
	postHeader.Set("Content-Type", "application/x-www-form-urlencoded")
	postHeader.Set("Cookie", jar.String())
	postHeader.Set("Host", host)
	postHeader.Set("Origin", fwdProto+"://"+fwdHost)
	postHeader.Set("User-Agent", userAgent)
	postHeader.Set("X-Forwarded-Host", fwdHost)
	postHeader.Set("X-Forwarded-Proto", fwdProto)

	resp, err := b.client.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    upstream.URI(r),
		Header: postHeader,
		Body:   []byte(body),
	})
	if err != nil {
		return nil, fmt.Errorf("sign-in post: %w", err)
	}
	if b.rewriter != nil {
		b.rewriter.RewriteHeader(resp.Header, r)
	}

	log.Debug().
		Str("path", r.URL.Path).
		Int("status", resp.StatusCode).
		Int("cookies", jar.Len()).
		Msg("sign-in translated")
	return resp, nil
}

// =============================================================================
// SESSION VALIDATION
// =============================================================================

// ValidateSession asks the app whether the caller's cookies carry a live session.
// Requests without a session cookie are rejected without an upstream call.
func (b *Bridge) ValidateSession(ctx context.Context, r *http.Request) (*SessionInfo, error) {
	cookieHeader := strings.TrimSpace(r.Header.Get("Cookie"))
	if cookieHeader == "" || !cookies.HasSession(cookieHeader) {
		return nil, ErrNoSession
	}

	fwdHost := upstream.PublicHost(r)
	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = sessionUserAgent
	}
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Cookie", cookieHeader)
	h.Set("Host", fwdHost)
	h.Set("User-Agent", userAgent)
	h.Set("X-Forwarded-Host", fwdHost)
	h.Set("X-Forwarded-Proto", upstream.ForwardedProto(r))

	resp, err := b.client.Do(ctx, upstream.Request{
		Method:  http.MethodGet,
		URL:     sessionPath,
		Header:  h,
		Timeout: b.opts.SessionTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidSession, resp.StatusCode)
	}
	return ParseSession(resp.Body)
}

// ParseSession derives SessionInfo from an Auth.js session payload. The payload
// must be an object with an object "user" and a non-empty string "expires".
func ParseSession(body []byte) (*SessionInfo, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrInvalidSession)
	}
	payload := gjson.ParseBytes(body)
	if !payload.IsObject() {
		return nil, fmt.Errorf("%w: payload is not an object", ErrInvalidSession)
	}
	user := payload.Get("user")
	if !user.IsObject() {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidSession)
	}
	expires := payload.Get("expires")
	if expires.Type != gjson.String || expires.Str == "" {
		return nil, fmt.Errorf("%w: missing expires", ErrInvalidSession)
	}

	email := user.Get("email").String()
	if email == "" {
		email = user.Get("primaryEmail").String()
	}
	return &SessionInfo{
		Email: strings.ToLower(strings.TrimSpace(email)),
		Roles: extractRoles(user),
		User:  json.RawMessage(user.Raw),
	}, nil
}

// rolePaths are the user fields that may carry roles or permissions.
var rolePaths = []string{
	"role",
	"roles",
	"permissions",
	"scope",
	"scopes",
	"customData.role",
	"customData.roles",
	"profile.role",
	"profile.roles",
}

var roleSeparator = regexp.MustCompile(`[,\s]+`)

func extractRoles(user gjson.Result) []string {
	seen := make(map[string]bool)
	var roles []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !seen[v] {
			seen[v] = true
			roles = append(roles, v)
		}
	}
	for _, path := range rolePaths {
		v := user.Get(path)
		switch {
		case v.Type == gjson.String:
			for _, part := range roleSeparator.Split(v.Str, -1) {
				add(part)
			}
		case v.IsArray():
			for _, item := range v.Array() {
				if item.IsObject() || item.IsArray() {
					continue
				}
				add(item.String())
			}
		}
	}
	return roles
}

// =============================================================================
// FORM ENCODING
// =============================================================================

type pair struct {
	key   string
	value string
}

// parseOrderedQuery keeps parameter order, which url.Values does not.
func parseOrderedQuery(raw string) []pair {
	var out []pair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			key = k
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			value = v
		}
		out = append(out, pair{key, value})
	}
	return out
}

func firstValue(pairs []pair, key string) string {
	for _, p := range pairs {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

func encodePairs(pairs []pair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return strings.Join(parts, "&")
}
