// Package gateway - router.go orders the lanes.
//
// DESIGN: gorilla/mux tries routes in registration order and the first match
// wins, which gives the lane priority directly:
//
//	health, ops, MCP, branded IdP host, logout, signout, legacy sign-in,
//	login helper, enforced login, service worker, helper root, sign-in
//	translation, file create, send message, voice off, TTS, generic proxy
//
// Every route is named after its monitoring lane; the catch-all proxy route is
// registered last so no request falls through unanswered.
package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/legalchat/auth-gateway/internal/authbridge"
	"github.com/legalchat/auth-gateway/internal/branding"
	"github.com/legalchat/auth-gateway/internal/monitoring"
)

func (g *Gateway) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.SkipClean(true)
	r.UseEncodedPath()
	r.Use(g.instrument)

	lane := func(l monitoring.Lane) *mux.Route {
		return r.NewRoute().Name(string(l))
	}
	get := []string{http.MethodGet}
	post := []string{http.MethodPost}

	lane(monitoring.LaneHealth).Path(HealthPath).Methods(get...).HandlerFunc(g.handleHealth)
	// Ops endpoints answer loopback callers only; anyone else reaches the app.
	lane(monitoring.LaneOps).Path(StatsPath).Methods(get...).MatcherFunc(matchRequest(fromLoopback)).HandlerFunc(g.handleStats)
	if g.cfg.Monitoring.Metrics {
		r.NewRoute().Name(string(monitoring.LaneOps) + "_metrics").Path(MetricsPath).Methods(get...).
			MatcherFunc(matchRequest(fromLoopback)).Handler(g.metrics.Handler())
	}

	// Tool-call gateway
	lane(monitoring.LaneMCP).Path(MCPStatusPath).Methods(get...).HandlerFunc(g.rateLimited(g.handleMCPStatus))
	r.NewRoute().Name("mcp_tools").Path(MCPToolsPath).Methods(get...).HandlerFunc(g.rateLimited(g.handleMCPTools))
	r.NewRoute().Name("mcp_call").Path(MCPCallPath).Methods(post...).HandlerFunc(g.rateLimited(g.handleMCPCall))
	r.NewRoute().Name("mcp_mode").Path(MCPBasePath + "/{mode:deep-research|pruefungsmodus}").Methods(post...).HandlerFunc(g.rateLimited(g.handleMCPCall))
	r.NewRoute().Name("mcp_mode_tool").Path(MCPModeToolPath).Methods(post...).HandlerFunc(g.rateLimited(g.handleMCPCall))

	// Branded identity provider host
	lane(monitoring.LaneLogto).MatcherFunc(matchRequest(g.isLogtoBrandingHost)).HandlerFunc(g.handleLogto)

	// Logout and sign-in
	lane(monitoring.LaneLogout).Methods(get...).MatcherFunc(matchPath(isLogoutPath)).HandlerFunc(g.handleLogout)
	lane(monitoring.LaneSignout).Methods(http.MethodGet, http.MethodPost).MatcherFunc(matchPath(isSignoutPath)).HandlerFunc(g.handleSignout)
	lane(monitoring.LaneSigninLegacy).Path(LegacySigninPath).Methods(get...).HandlerFunc(g.handleLegacySignin)
	lane(monitoring.LaneLoginHelper).Path(LoginPath).Methods(get...).Handler(g.helper)
	lane(monitoring.LaneEnforceLogin).MatcherFunc(matchRequest(func(req *http.Request) bool {
		return authbridge.ShouldEnforceLogin(req, g.cfg.Server.HelperHostSuffix)
	})).HandlerFunc(g.handleEnforceLogin)
	if g.cfg.Branding.DisableServiceWorker {
		lane(monitoring.LaneServiceWorker).Path(branding.ServiceWorkerPath).Methods(http.MethodGet, http.MethodHead).HandlerFunc(branding.ServeNoopServiceWorker)
	}
	lane(monitoring.LaneHelperRoot).Path("/").Methods(get...).MatcherFunc(matchRequest(func(req *http.Request) bool {
		return authbridge.IsHelperHost(req, g.cfg.Server.HelperHostSuffix)
	})).HandlerFunc(g.handleHelperRoot)
	lane(monitoring.LaneSignin).Methods(get...).MatcherFunc(matchPath(isSigninGetPath)).HandlerFunc(g.handleSignin)

	// Chat application lanes
	lane(monitoring.LaneFileCreate).Methods(post...).MatcherFunc(matchPath(isFileCreatePath)).HandlerFunc(g.handleFileCreate)
	lane(monitoring.LaneOCR).Methods(post...).MatcherFunc(matchPath(isSendMessagePath)).HandlerFunc(g.handleSendMessage)
	if g.cfg.TTS.VoiceOff {
		lane(monitoring.LaneVoiceOff).MatcherFunc(matchPath(isAnyTTSPath)).HandlerFunc(handleVoiceDisabled)
	}
	lane(monitoring.LaneTTS).Methods(post...).MatcherFunc(matchPath(isOpenAITTSPath)).HandlerFunc(g.handleTTS)

	lane(monitoring.LaneProxy).PathPrefix("/").HandlerFunc(g.handleProxy)
	return r
}

// laneOf maps a route name back to its lane. Secondary routes of a lane carry
// the lane as prefix.
func laneOf(route *mux.Route) monitoring.Lane {
	if route == nil {
		return monitoring.LaneProxy
	}
	switch name := route.GetName(); {
	case name == "":
		return monitoring.LaneProxy
	case strings.HasPrefix(name, string(monitoring.LaneMCP)+"_"):
		return monitoring.LaneMCP
	case strings.HasPrefix(name, string(monitoring.LaneOps)+"_"):
		return monitoring.LaneOps
	default:
		return monitoring.Lane(name)
	}
}

func matchPath(pred func(string) bool) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return pred(r.URL.Path)
	}
}

func matchRequest(pred func(*http.Request) bool) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return pred(r)
	}
}
