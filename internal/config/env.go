package config

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

var truthyPattern = regexp.MustCompile(`(?i)^(1|true|yes|on)$`)

// IsTruthy reports whether an env-style flag is 1/true/yes/on.
func IsTruthy(value string) bool {
	return truthyPattern.MatchString(strings.TrimSpace(value))
}

// ApplyEnv overrides fields from the deployment's environment variables.
// Only variables that are set are applied.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	e := envReader{lookup: lookup}

	e.int("PORT", &c.Server.Port)
	e.str("LOBECHAT_HOST", &c.Upstream.Host)
	e.int("LOBECHAT_PORT", &c.Upstream.Port)
	e.str("APP_PUBLIC_URL", &c.Upstream.PublicURL)

	// Auth and logout
	e.str("AUTH_LOGTO_ID", &c.Auth.ClientID)
	e.str("LOGTO_END_SESSION_ENDPOINT", &c.Auth.EndSessionEndpoint)
	e.str("LOGTO_POST_LOGOUT_REDIRECT_URL", &c.Auth.PostLogoutRedirect)
	e.str("LEGALCHAT_LOGOUT_MODE", &c.Auth.LogoutMode)
	e.str("LEGALCHAT_LOCAL_LOGOUT_REDIRECT_URL", &c.Auth.LocalLogoutRedirect)
	e.onUnlessZero("LEGALCHAT_FORCE_LOGIN_PROMPT", &c.Auth.ForceLoginPrompt)

	// Identity provider
	e.str("LOGTO_UPSTREAM_HOST", &c.Logto.Host)
	e.int("LOGTO_UPSTREAM_PORT", &c.Logto.Port)
	e.onUnlessZero("LEGALCHAT_LOGTO_BRANDING", &c.Logto.BrandingEnabled)
	e.csv("LEGALCHAT_LOGTO_BRANDING_HOSTS", &c.Logto.BrandingHosts)

	// Branding
	e.str("LEGALCHAT_APP_NAME", &c.Branding.AppName)
	e.str("LEGALCHAT_BRANDING_VERSION", &c.Branding.Version)
	e.str("LEGALCHAT_AVATAR_URL", &c.Branding.AvatarURL)
	e.str("LEGALCHAT_FAVICON_URL", &c.Branding.FaviconURL)
	e.str("LEGALCHAT_LOGTO_LOGO_URL", &c.Branding.LogoURL)
	e.str("LEGALCHAT_DEFAULT_AGENT_NAME", &c.Branding.AgentName)
	e.str("LEGALCHAT_ASSISTANT_ROLE_DE", &c.Branding.AssistantRole)
	e.onUnlessZero("LEGALCHAT_DISABLE_SERVICE_WORKER", &c.Branding.DisableServiceWorker)

	// OCR
	e.onUnlessZero("LEGALCHAT_OCR_ENABLED", &c.OCR.Enabled)
	e.str("LEGALCHAT_OCR_MODEL", &c.OCR.Model)
	e.str("LEGALCHAT_OCR_PROMPT", &c.OCR.Prompt)
	e.str("OPENROUTER_API_KEY", &c.OCR.APIKey)
	e.str("OPENROUTER_PROXY_URL", &c.OCR.BaseURL)
	e.int("LEGALCHAT_OCR_MAX_IMAGES", &c.OCR.MaxImages)
	e.int64("LEGALCHAT_OCR_MAX_IMAGE_BYTES", &c.OCR.MaxImageBytes)
	e.int("LEGALCHAT_OCR_MAX_TEXT_CHARS", &c.OCR.MaxTextChars)
	e.millis("LEGALCHAT_OCR_TIMEOUT_MS", &c.OCR.Timeout)
	e.millis("LEGALCHAT_OCR_FILE_CACHE_TTL_MS", &c.OCR.CacheTTL)
	e.int("LEGALCHAT_OCR_FILE_CACHE_SIZE", &c.OCR.CacheSize)

	// Object store
	e.str("S3_ENDPOINT", &c.Storage.Endpoint)
	e.str("S3_PUBLIC_DOMAIN", &c.Storage.PublicDomain)
	e.str("S3_BUCKET", &c.Storage.Bucket)
	e.str("S3_REGION", &c.Storage.Region)
	e.str("S3_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	e.str("S3_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	e.onUnlessZero("S3_ENABLE_PATH_STYLE", &c.Storage.PathStyle)
	e.seconds("LEGALCHAT_OCR_S3_PRESIGN_EXPIRES_SEC", &c.Storage.PresignExpires)
	if v, ok := lookup("S3_USE_SDK_CREDENTIALS"); ok {
		c.Storage.UseSDKCredentials = IsTruthy(v)
	}

	// Voice and TTS
	if v, ok := lookup("LEGALCHAT_VOICE_MODE"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "off", "disabled", "none", "0":
			c.TTS.VoiceOff = true
		default:
			c.TTS.VoiceOff = false
		}
	}
	if v, ok := lookup("LEGALCHAT_VOICE_OFF"); ok && strings.TrimSpace(v) == "1" {
		c.TTS.VoiceOff = true
	}
	if v, ok := lookup("TTS_EDGE_FALLBACK"); ok {
		c.TTS.EdgeFallback = v == "1"
	}
	e.onUnlessZero("TTS_GOOGLE_FALLBACK", &c.TTS.GoogleFallback)
	e.str("TTS_GOOGLE_HOST", &c.TTS.GoogleHost)
	e.str("TTS_GOOGLE_CLIENT", &c.TTS.GoogleClient)
	e.int("TTS_GOOGLE_MAX_CHARS", &c.TTS.GoogleMaxChars)
	e.str("TTS_FALLBACK_EDGE_VOICE", &c.TTS.DefaultEdgeVoice)

	// MCP
	if v, ok := lookup("LEGALCHAT_MCP_INTERNAL_ENABLED"); ok {
		c.MCP.Enabled = IsTruthy(v)
	}
	if c.MCP.Endpoints == nil {
		c.MCP.Endpoints = map[string]string{}
	}
	if v, ok := lookup("LEGALCHAT_MCP_DEEP_RESEARCH_ENDPOINT"); ok {
		c.MCP.Endpoints[ModeDeepResearch] = v
	}
	if v, ok := lookup("LEGALCHAT_MCP_PRUEFUNGSMODUS_ENDPOINT"); ok {
		c.MCP.Endpoints[ModePruefungsmodus] = v
	}
	e.str("LEGALCHAT_MCP_BEARER_TOKEN", &c.MCP.BearerToken)
	e.str("LEGALCHAT_MCP_ADMIN_BEARER_TOKEN", &c.MCP.AdminBearerToken)
	e.seconds("MCP_BRIDGE_REQUEST_TIMEOUT_SEC", &c.MCP.RequestTimeout)
	e.millis("LEGALCHAT_MCP_REQUEST_TIMEOUT_MS", &c.MCP.RequestTimeout)
	e.millis("LEGALCHAT_MCP_STATUS_TIMEOUT_MS", &c.MCP.StatusTimeout)
	e.csv("LEGALCHAT_MCP_ADMIN_EMAILS", &c.MCP.AdminEmails)
	e.csv("LEGALCHAT_MCP_ADMIN_ROLES", &c.MCP.AdminRoles)
	if c.MCP.PrivilegedTools == nil {
		c.MCP.PrivilegedTools = map[string][]string{}
	}
	if v, ok := lookup("LEGALCHAT_MCP_PRIVILEGED_TOOLS_DEEP_RESEARCH"); ok {
		c.MCP.PrivilegedTools[ModeDeepResearch] = splitCSV(v, true)
	}
	if v, ok := lookup("LEGALCHAT_MCP_PRIVILEGED_TOOLS_PRUEFUNGSMODUS"); ok {
		c.MCP.PrivilegedTools[ModePruefungsmodus] = splitCSV(v, true)
	}
	e.float("LEGALCHAT_MCP_RATE_LIMIT", &c.MCP.RateLimit)
	e.int("LEGALCHAT_MCP_RATE_BURST", &c.MCP.RateBurst)

	// Monitoring
	e.str("LOG_LEVEL", &c.Monitoring.LogLevel)
	e.str("LOG_FORMAT", &c.Monitoring.LogFormat)
	e.str("LEGALCHAT_TELEMETRY_PATH", &c.Monitoring.TelemetryPath)
	e.onUnlessZero("LEGALCHAT_LOG_REQUESTS", &c.Monitoring.LogRequests)
	e.onUnlessZero("LEGALCHAT_METRICS", &c.Monitoring.Metrics)
}

// envReader applies typed env values, ignoring unset or unparsable ones.
type envReader struct {
	lookup LookupFunc
}

func (e envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (e envReader) int64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func (e envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}

func (e envReader) millis(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}

func (e envReader) seconds(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(n * float64(time.Second))
		}
	}
}

// onUnlessZero mirrors flags that default on and are only disabled by "0".
func (e envReader) onUnlessZero(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		*dst = strings.TrimSpace(v) != "0"
	}
}

func (e envReader) csv(key string, dst *[]string) {
	if v, ok := e.lookup(key); ok {
		*dst = splitCSV(v, true)
	}
}
