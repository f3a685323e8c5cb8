// Package gateway - auth.go serves the sign-in and sign-out lanes.
//
// DESIGN: Logout never depends on the app: cookies are expired locally and the
// browser is sent to the local login page or the identity provider's
// end-session endpoint. Sign-in GETs are translated into the CSRF-protected
// POST the app expects, exactly once.
package gateway

import (
	"net/http"
	"net/url"

	"github.com/legalchat/auth-gateway/internal/authbridge"
	"github.com/legalchat/auth-gateway/internal/monitoring"
	"github.com/legalchat/auth-gateway/internal/upstream"
)

// handleLogout ends the session on GET /logout and /signout.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	location := g.logout.LogoutLocation(r.URL.Query().Get("post_logout_redirect_uri"), upstream.PublicOrigin(r))
	authbridge.SetLogoutHeaders(w.Header())
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// handleSignout routes the app's own signout endpoints through logout.
func (g *Gateway) handleSignout(w http.ResponseWriter, r *http.Request) {
	location := g.logout.SignoutLocation(r.URL.Query().Get("callbackUrl"), upstream.PublicOrigin(r))
	authbridge.SetLogoutHeaders(w.Header())
	if wantsJSONSignout(r) {
		writeJSON(w, http.StatusOK, signoutBody{URL: location})
		return
	}
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// handleLegacySignin skips the app's built-in sign-in screen.
func (g *Gateway) handleLegacySignin(w http.ResponseWriter, r *http.Request) {
	callback := r.URL.Query().Get("callbackUrl")
	if callback == "" {
		callback = upstream.PublicOrigin(r) + "/chat"
	}
	redirect(w, LoginPath+"?callbackUrl="+url.QueryEscape(callback))
}

// handleEnforceLogin sends UI requests without any session cookie to /login.
func (g *Gateway) handleEnforceLogin(w http.ResponseWriter, r *http.Request) {
	redirect(w, authbridge.LoginRedirectLocation(r))
}

// handleHelperRoot shows the login page on the helper listener's root.
func (g *Gateway) handleHelperRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Location", LoginPath)
	w.WriteHeader(http.StatusFound)
}

// handleSignin translates a provider sign-in GET into the app's POST flow.
func (g *Gateway) handleSignin(w http.ResponseWriter, r *http.Request) {
	resp, err := g.bridge.TranslateSignIn(r.Context(), r)
	if err != nil {
		g.metrics.RecordSignin(false)
		monitoring.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("sign-in translation failed")
		writeText(w, http.StatusBadGateway, textAuthGateway)
		return
	}
	g.metrics.RecordSignin(true)
	upstream.Write(w, resp)
}
