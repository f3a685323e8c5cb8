// Package cookies handles raw Cookie and Set-Cookie header values.
//
// DESIGN: The gateway replays cookies between the browser and the auth
// endpoints verbatim, so values are kept exactly as received (no unquoting,
// no validation). net/http's cookie parser drops values it considers invalid,
// which breaks Auth.js chunked session tokens.
package cookies

import (
	"fmt"
	"regexp"
	"strings"
)

// Jar is an insertion-ordered cookie map.
type Jar struct {
	names  []string
	values map[string]string
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{values: make(map[string]string)}
}

// Set stores a cookie; a repeated name keeps its original position and takes the new value.
func (j *Jar) Set(name, value string) {
	if _, ok := j.values[name]; !ok {
		j.names = append(j.names, name)
	}
	j.values[name] = value
}

// Get returns a cookie value.
func (j *Jar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

// Names returns cookie names in insertion order.
func (j *Jar) Names() []string {
	return append([]string(nil), j.names...)
}

// Len returns the number of cookies.
func (j *Jar) Len() int { return len(j.names) }

// String serializes the jar as a Cookie header value.
func (j *Jar) String() string {
	parts := make([]string, 0, len(j.names))
	for _, name := range j.names {
		parts = append(parts, name+"="+j.values[name])
	}
	return strings.Join(parts, "; ")
}

// Parse reads a Cookie header value. Pairs without '=' or with an empty name are skipped.
func Parse(header string) *Jar {
	jar := NewJar()
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		jar.Set(name, strings.TrimSpace(value))
	}
	return jar
}

// ParseSetCookie reads the name=value pair of each Set-Cookie header.
func ParseSetCookie(headers []string) *Jar {
	jar := NewJar()
	for _, h := range headers {
		pair, _, _ := strings.Cut(h, ";")
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		jar.Set(name, strings.TrimSpace(value))
	}
	return jar
}

// Merge combines jars left to right; later values win.
func Merge(jars ...*Jar) *Jar {
	out := NewJar()
	for _, j := range jars {
		if j == nil {
			continue
		}
		for _, name := range j.names {
			out.Set(name, j.values[name])
		}
	}
	return out
}

// =============================================================================
// SESSION COOKIES
// =============================================================================

// sessionCookieNames are the Auth.js / NextAuth session token cookies.
var sessionCookieNames = []string{
	"authjs.session-token",
	"__Secure-authjs.session-token",
	"next-auth.session-token",
	"__Secure-next-auth.session-token",
}

// chunkedSessionPattern matches split session tokens such as authjs.session-token.0.
var chunkedSessionPattern = regexp.MustCompile(`^(__Secure-)?(authjs|next-auth)\.session-token\.\d+$`)

// IsSessionCookie reports whether name is a session token or one of its chunks.
func IsSessionCookie(name string) bool {
	for _, n := range sessionCookieNames {
		if name == n {
			return true
		}
	}
	return chunkedSessionPattern.MatchString(name)
}

// HasSession reports whether a Cookie header carries any session token.
func HasSession(header string) bool {
	if header == "" {
		return false
	}
	for _, name := range Parse(header).names {
		if IsSessionCookie(name) {
			return true
		}
	}
	return false
}

// =============================================================================
// EXPIRY
// =============================================================================

// MaxSessionChunks is how many numbered chunk variants logout expires per prefix.
const MaxSessionChunks = 12

// logoutCookieNames are expired unconditionally on logout.
var logoutCookieNames = []string{
	"__Host-authjs.csrf-token",
	"__Secure-authjs.callback-url",
	"__Secure-authjs.pkce.code_verifier",
	"__Secure-authjs.state",
	"__Secure-authjs.nonce",
	"authjs.session-token",
	"__Secure-authjs.session-token",
	"next-auth.session-token",
	"__Secure-next-auth.session-token",
}

// Expired returns a Set-Cookie value that deletes name.
func Expired(name string) string {
	return fmt.Sprintf("%s=; Path=/; Max-Age=0; Expires=Thu, 01 Jan 1970 00:00:00 GMT; HttpOnly; Secure; SameSite=Lax", name)
}

// LogoutHeaders returns Set-Cookie values expiring every known auth cookie,
// including numbered session token chunks.
func LogoutHeaders() []string {
	out := make([]string, 0, len(logoutCookieNames)+len(sessionCookieNames)*MaxSessionChunks)
	for _, name := range logoutCookieNames {
		out = append(out, Expired(name))
	}
	for _, prefix := range sessionCookieNames {
		for i := 0; i < MaxSessionChunks; i++ {
			out = append(out, Expired(fmt.Sprintf("%s.%d", prefix, i)))
		}
	}
	return out
}
