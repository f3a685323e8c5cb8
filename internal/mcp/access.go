// Package mcp - access.go decides who is calling and whether they may run a tool.
//
// DESIGN: Authentication order is admin bearer, standard bearer, then session.
// Privileged tools additionally need the admin bearer or an allow-listed
// session email or role.
package mcp

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/legalchat/auth-gateway/internal/authbridge"
)

// Auth types and bearer roles reported in status responses and logs.
const (
	AuthBearer  = "bearer"
	AuthSession = "session"

	RoleAdmin    = "admin"
	RoleStandard = "standard"
)

// Access errors. HTTPStatus and Message map them to responses.
var (
	ErrDisabled     = errors.New("mcp: lane disabled")
	ErrUnauthorized = errors.New("mcp: unauthorized")
	ErrForbidden    = errors.New("mcp: forbidden")
)

// HTTPStatus returns the response status for an access error.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing text for an access error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrDisabled):
		return "MCP lane is disabled."
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized. Sign in or provide a valid bearer token."
	case errors.Is(err, ErrForbidden):
		return "Forbidden. Missing role or permission for this MCP tool. Ask an administrator for access."
	}
	return err.Error()
}

// Access describes an authenticated caller.
type Access struct {
	AuthType   string
	BearerRole string
	Session    *authbridge.SessionInfo
}

// SessionValidator resolves the caller's app session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, r *http.Request) (*authbridge.SessionInfo, error)
}

// Authenticator checks bearer tokens and sessions.
type Authenticator struct {
	enabled     bool
	adminToken  string
	bearerToken string
	sessions    SessionValidator
}

// NewAuthenticator creates an authenticator. sessions may be nil (bearer only).
func NewAuthenticator(enabled bool, adminToken, bearerToken string, sessions SessionValidator) *Authenticator {
	return &Authenticator{
		enabled:     enabled,
		adminToken:  adminToken,
		bearerToken: bearerToken,
		sessions:    sessions,
	}
}

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+`)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	value := strings.TrimSpace(header)
	if !bearerPattern.MatchString(value) {
		return ""
	}
	return strings.TrimSpace(bearerPattern.ReplaceAllString(value, ""))
}

func tokenEquals(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Authenticate identifies the caller. The admin token is checked before the
// standard one; a session is consulted only when no bearer token matched.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Access, error) {
	if !a.enabled {
		return nil, ErrDisabled
	}
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		if tokenEquals(token, a.adminToken) {
			return &Access{AuthType: AuthBearer, BearerRole: RoleAdmin}, nil
		}
		if tokenEquals(token, a.bearerToken) {
			return &Access{AuthType: AuthBearer, BearerRole: RoleStandard}, nil
		}
	}
	if a.sessions != nil {
		session, err := a.sessions.ValidateSession(ctx, r)
		if err == nil && session != nil {
			return &Access{AuthType: AuthSession, Session: session}, nil
		}
		if err != nil && !errors.Is(err, authbridge.ErrNoSession) {
			log.Debug().Err(err).Msg("mcp: session validation failed")
		}
	}
	return nil, ErrUnauthorized
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

// Policy decides which callers may run privileged tools.
type Policy struct {
	adminEmails map[string]bool
	adminRoles  map[string]bool
	privileged  map[string]map[string]bool
}

// NewPolicy builds a policy from lowercased allow-lists and per-mode tool lists.
func NewPolicy(adminEmails, adminRoles []string, privileged map[string][]string) *Policy {
	p := &Policy{
		adminEmails: toSet(adminEmails),
		adminRoles:  toSet(adminRoles),
		privileged:  make(map[string]map[string]bool),
	}
	for mode, tools := range privileged {
		if key := NormalizeMode(mode); key != "" {
			p.privileged[key] = toSet(tools)
		}
	}
	return p
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			set[item] = true
		}
	}
	return set
}

// IsPrivileged reports whether tool needs admin rights in mode.
func (p *Policy) IsPrivileged(mode, tool string) bool {
	modeKey := NormalizeMode(mode)
	toolKey := strings.ToLower(strings.TrimSpace(tool))
	if modeKey == "" || toolKey == "" {
		return false
	}
	return p.privileged[modeKey][toolKey]
}

// IsSessionAdmin reports whether a session's email or any role is allow-listed.
func (p *Policy) IsSessionAdmin(s *authbridge.SessionInfo) bool {
	if s == nil {
		return false
	}
	if s.Email != "" && p.adminEmails[s.Email] {
		return true
	}
	for _, role := range s.Roles {
		if p.adminRoles[role] {
			return true
		}
	}
	return false
}

// Authorize returns ErrForbidden when access may not run tool in mode.
func (p *Policy) Authorize(access *Access, mode, tool string) error {
	if !p.IsPrivileged(mode, tool) {
		return nil
	}
	if access != nil && access.AuthType == AuthBearer && access.BearerRole == RoleAdmin {
		return nil
	}
	if access != nil && p.IsSessionAdmin(access.Session) {
		return nil
	}
	authType := "unknown"
	if access != nil && access.AuthType != "" {
		authType = access.AuthType
	}
	log.Warn().Str("mode", mode).Str("tool", tool).Str("auth", authType).Msg("mcp: denied tool call")
	return ErrForbidden
}
