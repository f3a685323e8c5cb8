package branding

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/legalchat/auth-gateway/internal/authbridge"
	"github.com/legalchat/auth-gateway/internal/config"
)

// HelperOptions configures the login helper page.
type HelperOptions struct {
	AppName       string
	AppOrigin     string
	AvatarURL     string
	Version       string
	AgentName     string
	AssistantRole string
	ForcePrompt   bool
}

// Helper renders the /login helper page.
type Helper struct {
	opts   HelperOptions
	avatar string
}

// NewHelper creates a helper page renderer.
func NewHelper(opts HelperOptions) *Helper {
	return &Helper{opts: opts, avatar: WithVersion(opts.AvatarURL, opts.Version)}
}

type helperData struct {
	AppName       string
	AvatarURL     string
	AgentName     string
	AssistantRole string
	LoginHref     string
	SignUpHref    string
	LoggedOut     bool
}

// Render builds the page for callbackURL. Both links start at the app's
// provider sign-in route; entering the provider on /sign-up directly ends in
// an unknown-session page.
func (h *Helper) Render(callbackURL string, loggedOut bool) ([]byte, error) {
	callback := authbridge.NormalizeCallbackURL(callbackURL, h.opts.AppOrigin)
	data := helperData{
		AppName:       h.opts.AppName,
		AvatarURL:     h.avatar,
		AgentName:     h.opts.AgentName,
		AssistantRole: h.opts.AssistantRole,
		LoginHref:     authbridge.ProviderSigninURL(callback, authbridge.SigninOptions{ForcePrompt: h.opts.ForcePrompt}),
		SignUpHref:    authbridge.ProviderSigninURL(callback, authbridge.SigninOptions{FirstScreen: "register"}),
		LoggedOut:     loggedOut,
	}
	var buf bytes.Buffer
	if err := helperTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render login helper: %w", err)
	}
	return buf.Bytes(), nil
}

// ServeHTTP writes the helper page for the request's callbackUrl and logged_out
// query parameters.
func (h *Helper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.Render(q.Get("callbackUrl"), config.IsTruthy(q.Get("logged_out")))
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// =============================================================================
// SERVICE WORKER
// =============================================================================

// ServiceWorkerPath is the chat application's service worker script.
const ServiceWorkerPath = "/sw.js"

// NoopServiceWorker unregisters itself and reloads every controlled window.
const NoopServiceWorker = `self.addEventListener('install', function () { self.skipWaiting(); });
self.addEventListener('activate', function (event) {
  event.waitUntil((async function () {
    await self.registration.unregister();
    var clients = await self.clients.matchAll({ includeUncontrolled: true, type: 'window' });
    for (var i = 0; i < clients.length; i += 1) {
      clients[i].navigate(clients[i].url);
    }
  })());
});
self.addEventListener('fetch', function () {});`

// ServeNoopServiceWorker answers GET and HEAD for the service worker script.
func ServeNoopServiceWorker(w http.ResponseWriter, r *http.Request) {
	SetNoStore(w.Header())
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(NoopServiceWorker)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(NoopServiceWorker))
	}
}

var helperTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="de">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.AppName}} Anmeldung</title>
  <meta name="theme-color" content="#0b1635" />
  <style>
    * { box-sizing: border-box; }
    html, body { height: 100%; }
    body {
      margin: 0;
      color: #ebf1ff;
      font-family: "Manrope", "Segoe UI", "Helvetica Neue", sans-serif;
      background: radial-gradient(120% 90% at 50% 0%, #122b65 0%, #0b1738 42%, #060f27 100%);
    }
    .wrap { min-height: 100%; display: grid; place-items: center; padding: 24px; }
    .card {
      width: min(640px, 100%);
      border-radius: 28px;
      padding: clamp(28px, 5vw, 44px);
      text-align: center;
      background: linear-gradient(180deg, rgba(16, 30, 67, 0.92), rgba(10, 20, 49, 0.9));
      border: 1px solid rgba(177, 202, 255, 0.2);
      box-shadow: 0 36px 90px rgba(3, 8, 24, 0.7);
    }
    .eyebrow { font-size: 11px; letter-spacing: 0.16em; text-transform: uppercase; color: #bed1ff; margin-bottom: 20px; }
    .avatar { width: 140px; height: 140px; object-fit: cover; border-radius: 50%; border: 3px solid rgba(132, 175, 255, 0.9); }
    h1 { margin: 12px 0 0; font-size: clamp(34px, 5vw, 48px); letter-spacing: -0.03em; }
    .subline { margin: 10px 0 0; font-size: clamp(17px, 2.4vw, 21px); color: #b4c7ee; }
    .status {
      margin: 18px auto 0; display: inline-flex; align-items: center; gap: 10px; padding: 9px 14px;
      border-radius: 999px; border: 1px solid rgba(98, 228, 168, 0.52); background: rgba(28, 78, 64, 0.35);
      color: #d6ffe6; font-size: 14px; font-weight: 600;
    }
    .statusDot { width: 9px; height: 9px; border-radius: 50%; background: #46d39b; }
    .ctaWrap { margin-top: 28px; display: flex; justify-content: center; gap: 10px; flex-wrap: wrap; }
    .button {
      display: inline-flex; align-items: center; justify-content: center; min-width: 216px; padding: 14px 26px;
      border-radius: 14px; text-decoration: none; font-size: 18px; font-weight: 800; color: #fff;
      background: linear-gradient(130deg, #4ea1ff, #7f7bff); border: 1px solid rgba(182, 209, 255, 0.55);
    }
    .button.secondary { background: rgba(17, 35, 82, 0.72); color: #dbe9ff; }
    .hint { margin: 16px auto 0; color: #aebfdf; font-size: 14px; max-width: 46ch; line-height: 1.5; }
    .footer { margin-top: 16px; font-size: 12px; letter-spacing: 0.09em; text-transform: uppercase; color: rgba(173, 195, 236, 0.72); }
    @media (max-width: 640px) { .button { width: 100%; min-width: 0; } }
  </style>
</head>
<body>
  <div class="wrap">
    <div class="card">
      <div class="eyebrow">Sichere Anmeldung</div>
      <img src="{{.AvatarURL}}" alt="{{.AgentName}}" class="avatar" />
      <h1>{{.AppName}} ⚖</h1>
      <p class="subline">Ihr {{.AssistantRole}}</p>
      {{- if .LoggedOut}}
      <div class="status" role="status" aria-live="polite">
        <span class="statusDot" aria-hidden="true"></span>
        Sie wurden sicher abgemeldet.
      </div>
      {{- end}}
      <div class="ctaWrap">
        <a class="button" href="{{.LoginHref}}">Anmelden</a>
        <a class="button secondary" href="{{.SignUpHref}}">Konto erstellen</a>
      </div>
      <p class="hint">Anmeldung ist möglich via Apple, Google, Facebook oder GitHub (falls aktiviert) sowie optional mit Passwort. Danach werden Sie direkt zurück in Ihren Workspace geleitet.</p>
      <div class="footer">{{.AppName}} Security Layer</div>
    </div>
  </div>
</body>
</html>
`))
