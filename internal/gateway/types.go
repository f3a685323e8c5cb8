// Package gateway types - route paths and response shapes shared by the lanes.
//
// DESIGN: Route names are monitoring lanes, so the router, the metrics and the
// telemetry all agree on what answered a request. Types are defined here to
// keep the lane files small.
package gateway

import (
	"github.com/legalchat/auth-gateway/internal/branding"
)

// =============================================================================
// PATHS
// =============================================================================

// Fixed routes served by the gateway itself.
const (
	HealthPath       = "/healthz"
	MetricsPath      = "/metrics"
	StatsPath        = "/stats"
	LoginPath        = "/login"
	LegacySigninPath = "/next-auth/signin"
)

// Tool-call routes.
const (
	MCPBasePath     = branding.MCPBasePath
	MCPStatusPath   = MCPBasePath + "/status"
	MCPToolsPath    = MCPBasePath + "/tools"
	MCPCallPath     = MCPBasePath + "/call"
	MCPModeToolPath = MCPBasePath + "/{mode:deep-research|pruefungsmodus}/{tool:[^/]+}"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

// Voice policy response.
const (
	HeaderVoiceMode      = "X-Legalchat-Voice-Mode"
	voiceDisabledCode    = "VOICE_DISABLED"
	voiceDisabledMessage = "Voice service is disabled by LegalChat policy."
)

// Plain-text failure bodies of the browser lanes.
const (
	textBadGateway      = "Bad Gateway"
	textAuthGateway     = "Auth gateway error"
	textFileCacheProxy  = "File cache proxy error"
	textAutoOCRProxy    = "Auto OCR proxy error"
	textTTSProxy        = "TTS proxy error"
	textPayloadTooLarge = "Payload Too Large"
)

// =============================================================================
// RESPONSE SHAPES
// =============================================================================

// errorBody is the JSON error shape of the API lanes.
type errorBody struct {
	Error string `json:"error"`
	OK    bool   `json:"ok"`
}

// voiceDisabledBody is returned for every speech path while voice is off.
type voiceDisabledBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// signoutBody answers JSON-style signout requests.
type signoutBody struct {
	URL string `json:"url"`
}
