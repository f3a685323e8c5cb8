package authbridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalchat/auth-gateway/internal/upstream"
)

func newBridge(t *testing.T, handler http.HandlerFunc) *Bridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := upstream.NewClient(srv.URL)
	require.NoError(t, err)
	rewriter := upstream.NewLocationRewriter([]string{"lobe-chat-glass"}, nil)
	return New(client, rewriter, Options{PublicURL: "https://chat.example.com"})
}

func TestTranslateSignIn(t *testing.T) {
	var gotForm, gotCookie, gotOrigin, gotHost, gotContentType, gotQuery string
	b := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/csrf":
			assert.Equal(t, "a=1", r.Header.Get("Cookie"))
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Add("Set-Cookie", "__Host-authjs.csrf-token=abc%7Cdef; Path=/; HttpOnly")
			_, _ = w.Write([]byte(`{"csrfToken":"tok"}`))
		case "/api/auth/signin/logto":
			body, _ := io.ReadAll(r.Body)
			gotForm = string(body)
			gotCookie = r.Header.Get("Cookie")
			gotOrigin = r.Header.Get("Origin")
			gotHost = r.Host
			gotContentType = r.Header.Get("Content-Type")
			gotQuery = r.URL.RawQuery
			w.Header().Set("Location", "http://lobe-chat-glass:3210/oidc/auth?client_id=x")
			w.Header().Add("Set-Cookie", "authjs.state=s; Path=/")
			w.WriteHeader(http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/api/auth/signin/logto?callbackUrl=https%3A%2F%2Fchat.example.com%2Fchat&prompt=login&csrfToken=ignored", nil)
	r.Host = "chat.example.com"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("Cookie", "a=1")

	resp, err := b.TranslateSignIn(context.Background(), r)
	require.NoError(t, err)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://chat.example.com/oidc/auth?client_id=x", resp.Header.Get("Location"))
	assert.Equal(t, []string{"authjs.state=s; Path=/"}, resp.Header.Values("Set-Cookie"))

	assert.Equal(t, "csrfToken=tok&callbackUrl=https%3A%2F%2Fchat.example.com%2Fchat&prompt=login", gotForm)
	assert.Equal(t, "a=1; __Host-authjs.csrf-token=abc%7Cdef", gotCookie)
	assert.Equal(t, "https://chat.example.com", gotOrigin)
	assert.Equal(t, "chat.example.com", gotHost)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Contains(t, gotQuery, "prompt=login")
}

func TestTranslateSignIn_DefaultCallback(t *testing.T) {
	var gotForm string
	b := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/csrf" {
			_, _ = w.Write([]byte(`{"csrfToken":"tok"}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotForm = string(body)
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/next-auth/signin/logto", nil)
	_, err := b.TranslateSignIn(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "csrfToken=tok&callbackUrl=https%3A%2F%2Fchat.example.com", gotForm)
}

func TestTranslateSignIn_Failures(t *testing.T) {
	tests := []struct {
		name string
		csrf func(w http.ResponseWriter)
	}{
		{"csrf status", func(w http.ResponseWriter) { w.WriteHeader(http.StatusInternalServerError) }},
		{"csrf not json", func(w http.ResponseWriter) { _, _ = w.Write([]byte("<html>")) }},
		{"csrf missing token", func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"other":1}`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posted := false
			b := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/auth/csrf" {
					tt.csrf(w)
					return
				}
				posted = true
			})
			r := httptest.NewRequest(http.MethodGet, "/api/auth/signin/logto", nil)
			_, err := b.TranslateSignIn(context.Background(), r)
			assert.ErrorIs(t, err, ErrCSRFUnavailable)
			assert.False(t, posted)
		})
	}
}

func TestValidateSession(t *testing.T) {
	calls := 0
	b := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/auth/session", r.URL.Path)
		assert.Equal(t, "authjs.session-token=abc", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte(`{"user":{"email":" Jane@Example.COM ","roles":["Admin",null],"customData":{"role":"editor, owner"}},"expires":"2030-01-01T00:00:00Z"}`))
	})

	r := httptest.NewRequest(http.MethodGet, "/api/legalchat/mcp/status", nil)
	r.Header.Set("Cookie", "authjs.session-token=abc")
	s, err := b.ValidateSession(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", s.Email)
	assert.Equal(t, []string{"admin", "editor", "owner"}, s.Roles)
	assert.True(t, s.HasRole("OWNER"))
	assert.False(t, s.HasRole("viewer"))
	assert.JSONEq(t, `{"email":" Jane@Example.COM ","roles":["Admin",null],"customData":{"role":"editor, owner"}}`, string(s.User))

	_, _ = b.ValidateSession(context.Background(), r)
	assert.Equal(t, 2, calls)
}

func TestValidateSession_NoCookie(t *testing.T) {
	b := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := b.ValidateSession(context.Background(), r)
	assert.ErrorIs(t, err, ErrNoSession)

	r.Header.Set("Cookie", "theme=dark")
	_, err = b.ValidateSession(context.Background(), r)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestValidateSession_Rejected(t *testing.T) {
	b := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "__Secure-authjs.session-token.0=abc")
	_, err := b.ValidateSession(context.Background(), r)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestParseSession(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		email string
		ok    bool
	}{
		{"valid", `{"user":{"email":"a@b.de"},"expires":"x"}`, "a@b.de", true},
		{"primary email", `{"user":{"primaryEmail":"P@B.DE"},"expires":"x"}`, "p@b.de", true},
		{"no email", `{"user":{},"expires":"x"}`, "", true},
		{"empty object", `{}`, "", false},
		{"user not object", `{"user":"a","expires":"x"}`, "", false},
		{"empty expires", `{"user":{},"expires":""}`, "", false},
		{"numeric expires", `{"user":{},"expires":1}`, "", false},
		{"null", `null`, "", false},
		{"not json", `nope`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSession([]byte(tt.body))
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidSession)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.email, s.Email)
		})
	}
}
