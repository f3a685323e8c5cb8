package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalchat/auth-gateway/internal/branding"
	"github.com/legalchat/auth-gateway/internal/config"
	"github.com/legalchat/auth-gateway/internal/tts"
)

// =============================================================================
// FIXTURES
// =============================================================================

func hostPort(t *testing.T, raw string) (string, int) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

// newTestGateway points the gateway at a fake chat app and identity provider.
func newTestGateway(t *testing.T, app, logto http.HandlerFunc, mutate func(*config.Config)) *Gateway {
	t.Helper()
	if app == nil {
		app = notFound
	}
	if logto == nil {
		logto = notFound
	}
	appSrv := httptest.NewServer(app)
	t.Cleanup(appSrv.Close)
	logtoSrv := httptest.NewServer(logto)
	t.Cleanup(logtoSrv.Close)

	cfg := config.Default()
	cfg.Upstream.Host, cfg.Upstream.Port = hostPort(t, appSrv.URL)
	cfg.Upstream.PublicURL = "http://example.com"
	cfg.Logto.Host, cfg.Logto.Port = hostPort(t, logtoSrv.URL)
	cfg.Logto.BrandingHosts = []string{"auth.example.com"}
	cfg.Auth.ClientID = "app123"
	cfg.Monitoring.LogRequests = false
	if mutate != nil {
		mutate(cfg)
	}
	cfg.Normalize()

	g, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.tracker.Close() })
	return g
}

func serve(g *Gateway, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, r)
	return w
}

func withSession(r *http.Request) *http.Request {
	r.Header.Set("Cookie", "authjs.session-token=abc")
	return r
}

// =============================================================================
// FIXED LANES
// =============================================================================

func TestHealthz(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)
	w := serve(g, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestRequestIDPropagated(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(HeaderRequestID, "req-42")

	w := serve(g, r)
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
}

func loopback(r *http.Request) *http.Request {
	r.RemoteAddr = "127.0.0.1:5555"
	return r
}

func TestStats(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)

	w := serve(g, loopback(httptest.NewRequest(http.MethodGet, "/stats", nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "file_cache_entries")
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)
	serve(g, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := serve(g, loopback(httptest.NewRequest(http.MethodGet, "/metrics", nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `legalchat_gateway_requests_total{code="2xx",lane="health"} 1`)
	assert.Contains(t, w.Body.String(), "legalchat_gateway_file_cache_entries 0")
}

func TestOpsEndpointsRemoteCallersReachApp(t *testing.T) {
	app := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "app "+r.URL.Path)
	}
	g := newTestGateway(t, app, nil, nil)

	for _, path := range []string{"/stats", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, path, nil)
			r.RemoteAddr = "203.0.113.9:40000"
			w := serve(g, r)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "app "+path, w.Body.String())
		})
	}
}

func TestServiceWorker(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)
	w := serve(g, httptest.NewRequest(http.MethodGet, "/sw.js", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, branding.NoopServiceWorker, w.Body.String())
	assert.Equal(t, branding.CacheControl, w.Header().Get("Cache-Control"))
}

// =============================================================================
// AUTH LANES
// =============================================================================

func TestLogout(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		target   string
		location string
	}{
		{
			name:     "local default",
			target:   "/logout",
			location: "/login?logged_out=1",
		},
		{
			name:     "local same-origin redirect",
			target:   "/signout?post_logout_redirect_uri=" + url.QueryEscape("http://example.com/welcome"),
			location: "/welcome",
		},
		{
			name: "oidc end session",
			mutate: func(c *config.Config) {
				c.Auth.LogoutMode = config.LogoutModeOIDC
				c.Auth.EndSessionEndpoint = "https://auth.example.com/oidc/session/end"
			},
			target:   "/logout",
			location: "https://auth.example.com/oidc/session/end?client_id=app123&post_logout_redirect_uri=http%3A%2F%2Fexample.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, nil, nil, tt.mutate)
			w := serve(g, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			assert.NotEmpty(t, w.Header().Values("Set-Cookie"))
		})
	}
}

func TestSignout(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)

	w := serve(g, httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"/login?logged_out=1"}`, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Values("Set-Cookie"))

	w = serve(g, httptest.NewRequest(http.MethodGet, "/next-auth/signout", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?logged_out=1", w.Header().Get("Location"))

	r := httptest.NewRequest(http.MethodGet, "/api/auth/signout", nil)
	r.Header.Set("X-Auth-Return-Redirect", "1")
	w = serve(g, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLegacySignin(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/next-auth/signin", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?callbackUrl=http%3A%2F%2Fexample.com%2Fchat", w.Header().Get("Location"))

	w = serve(g, httptest.NewRequest(http.MethodGet, "/next-auth/signin?callbackUrl=%2Fsettings", nil))
	assert.Equal(t, "/login?callbackUrl=%2Fsettings", w.Header().Get("Location"))
}

func TestLoginHelper(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)
	w := serve(g, httptest.NewRequest(http.MethodGet, "/login?logged_out=1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "LegalChat")
}

func TestEnforceLogin(t *testing.T) {
	var hits int
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("app"))
	}, nil, nil)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/chat?x=1", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?callbackUrl="+url.QueryEscape("http://example.com/chat?x=1"), w.Header().Get("Location"))
	assert.Zero(t, hits)

	w = serve(g, withSession(httptest.NewRequest(http.MethodGet, "/chat?x=1", nil)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, hits)
}

func TestHelperRoot(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "localhost:3211"

	w := serve(g, r)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestSigninTranslation(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/csrf":
			_, _ = w.Write([]byte(`{"csrfToken":"tok"}`))
		case "/api/auth/signin/logto":
			assert.Equal(t, http.MethodPost, r.Method)
			w.Header().Set("Location", "http://lobe-chat-glass:3210/oidc/auth")
			w.WriteHeader(http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, nil, nil)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/auth/signin/logto", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://example.com/oidc/auth", w.Header().Get("Location"))
	assert.Equal(t, int64(1), g.metrics.Stats()["signins"])
}

func TestSigninTranslation_Failure(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil, nil)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/next-auth/signin/logto", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Auth gateway error", w.Body.String())
}

// =============================================================================
// IDENTITY PROVIDER HOST
// =============================================================================

func TestLogtoRedirects(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "auth.example.com"
	w := serve(g, r)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/sign-in?app_id=app123", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	r = httptest.NewRequest(http.MethodGet, "/api/auth/callback/logto?code=1", nil)
	r.Host = "AUTH.example.com:443"
	w = serve(g, r)
	assert.Equal(t, "http://example.com/api/auth/callback/logto?code=1", w.Header().Get("Location"))
}

func TestLogtoPageBranded(t *testing.T) {
	const page = `<html><head><title></title></head><body><script>window.logtoSsr = Object.freeze({"signInExperience":{"data":{"branding":{}}}});</script></body></html>`
	var gotEncoding, gotHost string
	g := newTestGateway(t, nil, func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Accept-Encoding")
		gotHost = r.Host
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(page))
	}, nil)

	r := httptest.NewRequest(http.MethodGet, "/sign-in?app_id=app123", nil)
	r.Host = "auth.example.com"
	r.Header.Set("Accept-Encoding", "gzip")
	w := serve(g, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "identity", gotEncoding)
	assert.Equal(t, "auth.example.com", gotHost)
	assert.Equal(t, branding.CacheControl, w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("ETag"))
	assert.Equal(t, strconv.Itoa(w.Body.Len()), w.Header().Get("Content-Length"))
	assert.Contains(t, w.Body.String(), "LegalChat")
}

func TestLogtoDisabledFallsThrough(t *testing.T) {
	var appHits int
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		appHits++
		_, _ = w.Write([]byte("app"))
	}, nil, func(c *config.Config) {
		c.Logto.BrandingEnabled = false
	})

	r := httptest.NewRequest(http.MethodGet, "/sign-in", nil)
	r.Host = "auth.example.com"
	w := serve(g, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, appHits)
}

// =============================================================================
// GENERIC PROXY
// =============================================================================

func TestProxyBrandsPages(t *testing.T) {
	var gotEncoding, gotFwdHost string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Accept-Encoding")
		gotFwdHost = r.Header.Get("X-Forwarded-Host")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>LobeChat</title></head><body>hi</body></html>`))
	}, nil, nil)

	w := serve(g, withSession(httptest.NewRequest(http.MethodGet, "/chat", nil)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "identity", gotEncoding)
	assert.Equal(t, "example.com", gotFwdHost)
	assert.Contains(t, w.Body.String(), `data-legalchat-branding="1"`)
	assert.Contains(t, w.Body.String(), "<title>LegalChat</title>")
	assert.Equal(t, branding.CacheControl, w.Header().Get("Cache-Control"))
	assert.Equal(t, strconv.Itoa(w.Body.Len()), w.Header().Get("Content-Length"))
}

func TestProxyPassesThroughOtherResponses(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/data":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"a":1}`))
		case "/moved":
			w.Header().Set("Location", "http://"+r.Host+"/elsewhere")
			w.WriteHeader(http.StatusFound)
		case "/custom.css":
			w.Header().Set("Content-Type", "text/css")
			_, _ = w.Write([]byte("body{}"))
		}
	}, nil, nil)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	assert.Equal(t, `{"a":1}`, w.Body.String())
	assert.Empty(t, w.Header().Get("Cache-Control"))

	r := httptest.NewRequest(http.MethodGet, "/moved", nil)
	r.Host = "internal.test"
	w = serve(g, r)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://internal.test/elsewhere", w.Header().Get("Location"))

	w = serve(g, httptest.NewRequest(http.MethodGet, branding.StylesheetPath, nil))
	assert.Equal(t, branding.CacheControl, w.Header().Get("Cache-Control"))
}

func TestProxyLocationRewrite(t *testing.T) {
	var appURL string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", appURL+"/welcome")
		w.WriteHeader(http.StatusTemporaryRedirect)
	}, nil, nil)
	appURL = g.cfg.Upstream.BaseURL()

	r := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "chat.example.com")
	w := serve(g, r)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://chat.example.com/welcome", w.Header().Get("Location"))
}

func TestProxyUpstreamDown(t *testing.T) {
	g := newTestGateway(t, nil, nil, func(c *config.Config) {
		c.Upstream.Host = "127.0.0.1"
		c.Upstream.Port = 1
	})
	w := serve(g, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Bad Gateway", w.Body.String())
}

// =============================================================================
// CHAT LANES
// =============================================================================

func TestFileCreateCachesMapping(t *testing.T) {
	const reqBody = `{"0":{"json":{"fileType":"image/jpeg","hash":"h","name":"scan.jpg","size":10,"url":"files/scan.jpg"}}}`
	var gotBody string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"result":{"data":{"json":{"id":"file_1","url":"/f/file_1"}}}}]`))
	}, nil, nil)

	r := httptest.NewRequest(http.MethodPost, "/trpc/lambda/file.createFile?batch=1", strings.NewReader(reqBody))
	w := serve(g, withSession(r))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reqBody, gotBody)
	assert.Contains(t, w.Body.String(), "file_1")
	assert.Equal(t, 1, g.cache.Len())
	entry, ok := g.cache.Get("file_1")
	require.True(t, ok)
	assert.Equal(t, "files/scan.jpg", entry.StorageURL)
	assert.Equal(t, "/f/file_1", entry.ResponseURL)
}

func TestFileCreateTooLarge(t *testing.T) {
	g := newTestGateway(t, nil, nil, func(c *config.Config) {
		c.Server.MaxBodyBytes = 8
	})
	r := httptest.NewRequest(http.MethodPost, "/trpc/lambda/file.createFile", strings.NewReader(`{"too":"large"}`))
	w := serve(g, withSession(r))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Payload Too Large", w.Body.String())
}

func TestSendMessageBypassForwardsBody(t *testing.T) {
	const body = `{"0":{"json":{"newUserMessage":{"content":"hi","files":["file_1"]}}}}`
	var got string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, nil, nil)

	r := httptest.NewRequest(http.MethodPost, "/trpc/lambda/aiChat.sendMessageInServer?batch=1", strings.NewReader(body))
	w := serve(g, withSession(r))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, got)
	assert.Equal(t, int64(1), g.metrics.FullStats().OCR.Bypassed)
}

// =============================================================================
// SPEECH LANES
// =============================================================================

func TestVoiceOff(t *testing.T) {
	g := newTestGateway(t, nil, nil, func(c *config.Config) {
		c.TTS.VoiceOff = true
	})

	for _, target := range []string{"/webapi/tts/openai", "/webapi/tts/edge", "/api/webapi/tts"} {
		w := serve(g, httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusForbidden, w.Code, target)
		assert.Equal(t, "off", w.Header().Get(HeaderVoiceMode))
		assert.JSONEq(t, `{"error":"VOICE_DISABLED","message":"Voice service is disabled by LegalChat policy."}`, w.Body.String())
	}
}

func TestTTSFallbackToEdge(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case tts.OpenAIPath:
			w.WriteHeader(http.StatusUnauthorized)
		case tts.EdgePath:
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("mp3"))
		}
	}, nil, func(c *config.Config) {
		c.TTS.EdgeFallback = true
		c.TTS.GoogleFallback = false
	})

	r := httptest.NewRequest(http.MethodPost, tts.OpenAIPath, strings.NewReader(`{"input":"Hallo","options":{"voice":"alloy"}}`))
	w := serve(g, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp3", w.Body.String())
	assert.Equal(t, tts.StageEdge, w.Header().Get(tts.FallbackHeader))
	assert.Equal(t, int64(1), g.metrics.FullStats().TTS.Fallbacks)
}

// =============================================================================
// MCP LANE
// =============================================================================

func newMCPGateway(t *testing.T, bridge http.HandlerFunc, mutate func(*config.Config)) *Gateway {
	t.Helper()
	srv := httptest.NewServer(bridge)
	t.Cleanup(srv.Close)
	return newTestGateway(t, nil, nil, func(c *config.Config) {
		c.MCP.Enabled = true
		c.MCP.BearerToken = "user-token"
		c.MCP.AdminBearerToken = "admin-token"
		c.MCP.Endpoints = map[string]string{config.ModeDeepResearch: srv.URL}
		if mutate != nil {
			mutate(c)
		}
	})
}

func bearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestMCPDisabled(t *testing.T) {
	g := newTestGateway(t, nil, nil, nil)
	w := serve(g, httptest.NewRequest(http.MethodGet, MCPStatusPath, nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"MCP lane is disabled.","ok":false}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestMCPUnauthorized(t *testing.T) {
	g := newMCPGateway(t, notFound, nil)
	w := serve(g, bearer(httptest.NewRequest(http.MethodGet, MCPStatusPath, nil), "wrong"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMCPStatus(t *testing.T) {
	g := newMCPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, nil)

	w := serve(g, bearer(httptest.NewRequest(http.MethodGet, MCPStatusPath, nil), "admin-token"))
	require.Equal(t, http.StatusOK, w.Code)

	var report struct {
		AuthType   string `json:"authType"`
		BearerRole string `json:"bearerRole"`
		Enabled    bool   `json:"enabled"`
		Modes      []struct {
			Mode       string `json:"mode"`
			Configured bool   `json:"configured"`
		} `json:"modes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "bearer", report.AuthType)
	assert.Equal(t, "admin", report.BearerRole)
	assert.True(t, report.Enabled)
	require.Len(t, report.Modes, 2)
	assert.True(t, report.Modes[0].Configured)
	assert.False(t, report.Modes[1].Configured)
}

func TestMCPTools(t *testing.T) {
	g := newMCPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"tools":[{"name":"search"}]}}`))
	}, nil)

	w := serve(g, bearer(httptest.NewRequest(http.MethodGet, MCPToolsPath+"?mode=Deep_Research", nil), "user-token"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mode":"deep-research","ok":true,"result":{"tools":[{"name":"search"}]}}`, w.Body.String())

	w = serve(g, bearer(httptest.NewRequest(http.MethodGet, MCPToolsPath+"?mode=chat", nil), "user-token"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing or invalid mode. Use \"deep-research\" or \"pruefungsmodus\".","ok":false}`, w.Body.String())
}

func TestMCPCall(t *testing.T) {
	var gotBody string
	g := newMCPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/call", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"content":"done"}}`))
	}, nil)

	tests := []struct {
		name   string
		target string
		body   string
		sent   string
	}{
		{
			name:   "generic route",
			target: MCPCallPath,
			body:   `{"mode":"deep-research","name":"search","arguments":{"q":"BGB"}}`,
			sent:   `{"name":"search","arguments":{"q":"BGB"}}`,
		},
		{
			name:   "mode route",
			target: MCPBasePath + "/deep-research",
			body:   `{"name":"search","q":"BGB"}`,
			sent:   `{"name":"search","arguments":{"q":"BGB"}}`,
		},
		{
			name:   "mode and tool route",
			target: MCPBasePath + "/deep-research/deep%20search",
			body:   `{"arguments":{"q":"BGB"}}`,
			sent:   `{"name":"deep search","arguments":{"q":"BGB"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			w := serve(g, bearer(r, "user-token"))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.JSONEq(t, tt.sent, gotBody)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, true, resp["ok"])
			assert.Equal(t, "deep-research", resp["mode"])
			assert.Equal(t, map[string]any{"content": "done"}, resp["result"])
		})
	}
}

func TestMCPCallErrors(t *testing.T) {
	g := newMCPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}, nil)

	t.Run("bad json", func(t *testing.T) {
		w := serve(g, bearer(httptest.NewRequest(http.MethodPost, MCPCallPath, strings.NewReader(`{`)), "user-token"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Invalid JSON body.","ok":false}`, w.Body.String())
	})

	t.Run("privileged tool denied", func(t *testing.T) {
		body := `{"mode":"deep-research","name":"ask_gemini_zivilrecht"}`
		w := serve(g, bearer(httptest.NewRequest(http.MethodPost, MCPCallPath, strings.NewReader(body)), "user-token"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"error":"Forbidden. Missing role or permission for this MCP tool. Ask an administrator for access.","mode":"deep-research","ok":false,"tool":"ask_gemini_zivilrecht"}`, w.Body.String())
	})

	t.Run("bridge failure", func(t *testing.T) {
		body := `{"mode":"deep-research","name":"search"}`
		w := serve(g, bearer(httptest.NewRequest(http.MethodPost, MCPCallPath, strings.NewReader(body)), "admin-token"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["ok"])
		assert.Equal(t, "search", resp["tool"])
		assert.Equal(t, float64(500), resp["bridgeStatus"])
	})

	t.Run("unconfigured mode", func(t *testing.T) {
		body := `{"mode":"pruefungsmodus","name":"search"}`
		w := serve(g, bearer(httptest.NewRequest(http.MethodPost, MCPCallPath, strings.NewReader(body)), "user-token"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), `is not configured.`)
	})
}

func TestMCPRateLimit(t *testing.T) {
	g := newMCPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, func(c *config.Config) {
		c.MCP.RateLimit = 0.001
		c.MCP.RateBurst = 1
	})

	w := serve(g, bearer(httptest.NewRequest(http.MethodGet, MCPStatusPath, nil), "user-token"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(g, bearer(httptest.NewRequest(http.MethodGet, MCPStatusPath, nil), "user-token"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestRequestPredicates(t *testing.T) {
	tests := []struct {
		name string
		pred func(string) bool
		path string
		want bool
	}{
		{"signin get", isSigninGetPath, "/api/auth/signin/logto", true},
		{"signin get nested", isSigninGetPath, "/api/auth/signin/logto/x", false},
		{"signout", isSignoutPath, "/next-auth/signout/", true},
		{"file create batch", isFileCreatePath, "/trpc/lambda/file.getFiles,file.createFile", true},
		{"file create single", isFileCreatePath, "/trpc/lambda/file.createFile", true},
		{"file create other", isFileCreatePath, "/trpc/lambda/file.createFileX", false},
		{"send message", isSendMessagePath, "/trpc/lambda/aiChat.sendMessageInServer", true},
		{"any tts", isAnyTTSPath, "/webapi/tts/microsoft", true},
		{"openai tts", isOpenAITTSPath, "/webapi/tts/openai/", true},
		{"openai tts other", isOpenAITTSPath, "/webapi/tts/edge", false},
		{"ui root", isUIPagePath, "/", true},
		{"ui settings", isUIPagePath, "/settings/provider", true},
		{"ui auth error", isUIPagePath, "/next-auth/error", true},
		{"not ui", isUIPagePath, "/api/chat-data", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred(tt.path))
		})
	}
}
