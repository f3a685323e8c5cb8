// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: Every default the gateway falls back to lives here, next to the
// floor it is clamped to. Env and YAML loaders only ever override these.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultListenPort is the port the gateway listens on (same as the app it fronts).
const DefaultListenPort = 3210

// DefaultReadTimeout bounds reading a client request.
const DefaultReadTimeout = 60 * time.Second

// DefaultWriteTimeout bounds writing a response. MCP bridge calls can run for
// twenty minutes, so this sits above DefaultMCPRequestTimeout.
const DefaultWriteTimeout = 21 * time.Minute

// DefaultMaxBodyBytes caps buffered request bodies (413 above this).
const DefaultMaxBodyBytes = 5 * 1024 * 1024

// DefaultHelperHostSuffix marks the listener whose root always redirects to /login.
const DefaultHelperHostSuffix = ":3211"

// =============================================================================
// UPSTREAMS
// =============================================================================

// DefaultAppHost is the chat application's container hostname.
const DefaultAppHost = "lobe-chat-glass"

// DefaultAppPort is the chat application's port.
const DefaultAppPort = 3210

// DefaultPublicURL is the public origin of the chat application.
const DefaultPublicURL = "http://localhost:3210"

// DefaultLogtoHost is the identity provider's container hostname.
const DefaultLogtoHost = "logto"

// DefaultLogtoPort is the identity provider's port.
const DefaultLogtoPort = 3001

// =============================================================================
// AUTH
// =============================================================================

// DefaultSessionTimeout bounds a single session validation call.
const DefaultSessionTimeout = 3 * time.Second

// DefaultEndSessionEndpoint is the OIDC end-session endpoint used in oidc logout mode.
const DefaultEndSessionEndpoint = "https://auth.legalchat.net/oidc/session/end"

// DefaultLocalLogoutRedirect is where local logout sends the browser.
const DefaultLocalLogoutRedirect = "/login?logged_out=1"

// Logout modes.
const (
	LogoutModeLocal = "local"
	LogoutModeOIDC  = "oidc"
)

// =============================================================================
// BRANDING
// =============================================================================

// DefaultAppName replaces upstream product names in HTML.
const DefaultAppName = "LegalChat"

// DefaultBrandingVersion is appended to branding asset URLs as ?v=.
const DefaultBrandingVersion = "2026-02-12-05"

// DefaultAvatarURL is the avatar/favicon asset.
const DefaultAvatarURL = "/custom-assets/legalchat-avatar.jpg"

// DefaultAgentName is the assistant name shown on the login helper.
const DefaultAgentName = "George"

// DefaultAssistantRole is the helper page subline.
const DefaultAssistantRole = "persönlicher KI-Jurist"

// DefaultBrandingHosts are the identity provider hosts served with branding.
const DefaultBrandingHosts = "auth.legalchat.net"

// =============================================================================
// OCR
// =============================================================================

// DefaultOCRModel is the vision model used for OCR.
const DefaultOCRModel = "google/gemini-2.5-flash-lite"

// DefaultOCRBaseURL is the OpenAI-compatible API base for the vision model.
const DefaultOCRBaseURL = "https://openrouter.ai/api/v1"

// OCR limits and their floors.
const (
	DefaultOCRMaxImages     = 6
	MinOCRMaxImages         = 1
	DefaultOCRMaxImageBytes = 12 * 1024 * 1024
	MinOCRMaxImageBytes     = 256 * 1024
	DefaultOCRMaxTextChars  = 12000
	MinOCRMaxTextChars      = 500
	DefaultOCRTimeout       = 45 * time.Second
	MinOCRTimeout           = 2 * time.Second
)

// File cache TTL and capacity.
const (
	DefaultFileCacheTTL  = 2 * time.Hour
	MinFileCacheTTL      = time.Minute
	DefaultFileCacheSize = 10000
)

// =============================================================================
// OBJECT STORE
// =============================================================================

// DefaultS3Region is used when S3_REGION is unset.
const DefaultS3Region = "us-east-1"

// Presign expiry and its floor.
const (
	DefaultPresignExpires = 300 * time.Second
	MinPresignExpires     = 30 * time.Second
)

// =============================================================================
// TTS
// =============================================================================

// Google translate TTS defaults.
const (
	DefaultGoogleTTSHost     = "translate.google.com"
	DefaultGoogleTTSClient   = "tw-ob"
	DefaultGoogleTTSMaxChars = 180
)

// DefaultEdgeVoice is the secondary backend voice when nothing maps.
const DefaultEdgeVoice = "en-US-JennyNeural"

// =============================================================================
// MCP
// =============================================================================

// Bridge call timeouts and their floors.
const (
	DefaultMCPRequestTimeout = 1200 * time.Second
	MinMCPRequestTimeout     = 2 * time.Second
	DefaultMCPStatusTimeout  = 3 * time.Second
	MinMCPStatusTimeout      = 750 * time.Millisecond
)

// DefaultMCPAdminRoles grant access to privileged tools.
const DefaultMCPAdminRoles = "admin,owner,superadmin"

// Default privileged tool lists per mode.
const (
	DefaultPrivilegedDeepResearch   = "ask_gemini_zivilrecht"
	DefaultPrivilegedPruefungsmodus = "run_exam,run_cct,get_validation_dashboard"
)

// DefaultMCPRateLimit is requests per second across the MCP lane (0 disables).
const DefaultMCPRateLimit = 0

// DefaultMCPRateBurst is the burst allowance when rate limiting is on.
const DefaultMCPRateBurst = 10

// =============================================================================
// LOGGING
// =============================================================================

// DefaultLogLevel is the zerolog level used when none is configured.
const DefaultLogLevel = "info"

// DefaultLogFormat selects the console writer on a terminal and JSON otherwise.
const DefaultLogFormat = "auto"
