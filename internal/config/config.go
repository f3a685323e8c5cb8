// Package config loads gateway configuration.
//
// DESIGN: Three layers, each overriding the previous:
//   - defaults:  constants from defaults.go
//   - YAML file: optional, ${VAR:-default} expanded before parsing
//   - env vars:  the deployment's LEGALCHAT_*, S3_*, TTS_*, LOGTO_* variables
//
// Normalize() clamps numeric settings to their floors after loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Auth       AuthConfig       `yaml:"auth"`
	Logto      LogtoConfig      `yaml:"logto"`
	Branding   BrandingConfig   `yaml:"branding"`
	OCR        OCRConfig        `yaml:"ocr"`
	Storage    StorageConfig    `yaml:"storage"`
	TTS        TTSConfig        `yaml:"tts"`
	MCP        MCPConfig        `yaml:"mcp"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// MonitoringConfig controls logging, telemetry and metrics.
type MonitoringConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"` // auto, console or json
	TelemetryPath string `yaml:"telemetry_path"`
	LogRequests   bool   `yaml:"log_requests"`
	Metrics       bool   `yaml:"metrics"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
	HelperHostSuffix string        `yaml:"helper_host_suffix"`
}

// UpstreamConfig locates the chat application.
type UpstreamConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
}

// BaseURL is the internal base URL of the chat application.
func (u UpstreamConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", u.Host, u.Port)
}

// AuthConfig controls sign-in and logout behaviour.
type AuthConfig struct {
	SessionTimeout      time.Duration `yaml:"session_timeout"`
	LogoutMode          string        `yaml:"logout_mode"`
	LocalLogoutRedirect string        `yaml:"local_logout_redirect"`
	EndSessionEndpoint  string        `yaml:"end_session_endpoint"`
	PostLogoutRedirect  string        `yaml:"post_logout_redirect"`
	ClientID            string        `yaml:"client_id"`
	ForceLoginPrompt    bool          `yaml:"force_login_prompt"`
}

// LogtoConfig locates the identity provider and its branded hosts.
type LogtoConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	BrandingEnabled bool     `yaml:"branding_enabled"`
	BrandingHosts   []string `yaml:"branding_hosts"`
}

// BaseURL is the internal base URL of the identity provider.
func (l LogtoConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", l.Host, l.Port)
}

// BrandingConfig controls HTML rewriting.
type BrandingConfig struct {
	AppName              string `yaml:"app_name"`
	Version              string `yaml:"version"`
	AvatarURL            string `yaml:"avatar_url"`
	FaviconURL           string `yaml:"favicon_url"`
	LogoURL              string `yaml:"logo_url"`
	AgentName            string `yaml:"agent_name"`
	AssistantRole        string `yaml:"assistant_role"`
	DisableServiceWorker bool   `yaml:"disable_service_worker"`
}

// OCRConfig controls automatic OCR of JPEG attachments.
type OCRConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Model         string        `yaml:"model"`
	Prompt        string        `yaml:"prompt"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	MaxImages     int           `yaml:"max_images"`
	MaxImageBytes int64         `yaml:"max_image_bytes"`
	MaxTextChars  int           `yaml:"max_text_chars"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	CacheSize     int           `yaml:"cache_size"`
}

// Active reports whether OCR can run at all.
func (o OCRConfig) Active() bool {
	return o.Enabled && o.APIKey != ""
}

// StorageConfig describes the S3-compatible object store.
type StorageConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	PublicDomain    string        `yaml:"public_domain"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	PathStyle       bool          `yaml:"path_style"`
	PresignExpires  time.Duration `yaml:"presign_expires"`

	// UseSDKCredentials falls back to the AWS default credential chain when no keys are set.
	UseSDKCredentials bool `yaml:"use_sdk_credentials"`
}

// TTSConfig controls the speech fallback chain and voice policy.
type TTSConfig struct {
	VoiceOff         bool   `yaml:"voice_off"`
	EdgeFallback     bool   `yaml:"edge_fallback"`
	GoogleFallback   bool   `yaml:"google_fallback"`
	GoogleHost       string `yaml:"google_host"`
	GoogleClient     string `yaml:"google_client"`
	GoogleMaxChars   int    `yaml:"google_max_chars"`
	DefaultEdgeVoice string `yaml:"default_edge_voice"`
}

// MCPConfig controls the tool-call gateway.
type MCPConfig struct {
	Enabled          bool                `yaml:"enabled"`
	Endpoints        map[string]string   `yaml:"endpoints"`
	BearerToken      string              `yaml:"bearer_token"`
	AdminBearerToken string              `yaml:"admin_bearer_token"`
	RequestTimeout   time.Duration       `yaml:"request_timeout"`
	StatusTimeout    time.Duration       `yaml:"status_timeout"`
	AdminEmails      []string            `yaml:"admin_emails"`
	AdminRoles       []string            `yaml:"admin_roles"`
	PrivilegedTools  map[string][]string `yaml:"privileged_tools"`
	RateLimit        float64             `yaml:"rate_limit"`
	RateBurst        int                 `yaml:"rate_burst"`
}

// MCP mode keys used in Endpoints and PrivilegedTools.
const (
	ModeDeepResearch   = "deep-research"
	ModePruefungsmodus = "pruefungsmodus"
)

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             DefaultListenPort,
			ReadTimeout:      DefaultReadTimeout,
			WriteTimeout:     DefaultWriteTimeout,
			MaxBodyBytes:     DefaultMaxBodyBytes,
			HelperHostSuffix: DefaultHelperHostSuffix,
		},
		Upstream: UpstreamConfig{
			Host:      DefaultAppHost,
			Port:      DefaultAppPort,
			PublicURL: DefaultPublicURL,
		},
		Auth: AuthConfig{
			SessionTimeout:      DefaultSessionTimeout,
			LogoutMode:          LogoutModeLocal,
			LocalLogoutRedirect: DefaultLocalLogoutRedirect,
			EndSessionEndpoint:  DefaultEndSessionEndpoint,
			ForceLoginPrompt:    true,
		},
		Logto: LogtoConfig{
			Host:            DefaultLogtoHost,
			Port:            DefaultLogtoPort,
			BrandingEnabled: true,
			BrandingHosts:   splitCSV(DefaultBrandingHosts, true),
		},
		Branding: BrandingConfig{
			AppName:              DefaultAppName,
			Version:              DefaultBrandingVersion,
			AvatarURL:            DefaultAvatarURL,
			AgentName:            DefaultAgentName,
			AssistantRole:        DefaultAssistantRole,
			DisableServiceWorker: true,
		},
		OCR: OCRConfig{
			Enabled:       true,
			Model:         DefaultOCRModel,
			BaseURL:       DefaultOCRBaseURL,
			MaxImages:     DefaultOCRMaxImages,
			MaxImageBytes: DefaultOCRMaxImageBytes,
			MaxTextChars:  DefaultOCRMaxTextChars,
			Timeout:       DefaultOCRTimeout,
			CacheTTL:      DefaultFileCacheTTL,
			CacheSize:     DefaultFileCacheSize,
		},
		Storage: StorageConfig{
			Region:         DefaultS3Region,
			PathStyle:      true,
			PresignExpires: DefaultPresignExpires,
		},
		TTS: TTSConfig{
			GoogleFallback:   true,
			GoogleHost:       DefaultGoogleTTSHost,
			GoogleClient:     DefaultGoogleTTSClient,
			GoogleMaxChars:   DefaultGoogleTTSMaxChars,
			DefaultEdgeVoice: DefaultEdgeVoice,
		},
		MCP: MCPConfig{
			Endpoints:      map[string]string{},
			RequestTimeout: DefaultMCPRequestTimeout,
			StatusTimeout:  DefaultMCPStatusTimeout,
			AdminRoles:     splitCSV(DefaultMCPAdminRoles, true),
			PrivilegedTools: map[string][]string{
				ModeDeepResearch:   splitCSV(DefaultPrivilegedDeepResearch, true),
				ModePruefungsmodus: splitCSV(DefaultPrivilegedPruefungsmodus, true),
			},
			RateLimit: DefaultMCPRateLimit,
			RateBurst: DefaultMCPRateBurst,
		},
		Monitoring: MonitoringConfig{
			LogLevel:    DefaultLogLevel,
			LogFormat:   DefaultLogFormat,
			LogRequests: true,
			Metrics:     true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.mergeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses YAML on top of defaults without consulting the environment
// beyond ${VAR} expansion.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeYAML(data); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(data []byte) error {
	expanded := ExpandEnvWithDefaults(string(data))
	return yaml.Unmarshal([]byte(expanded), c)
}

// Normalize clamps values to their floors and trims URLs.
func (c *Config) Normalize() {
	c.Upstream.PublicURL = strings.TrimSpace(c.Upstream.PublicURL)
	if c.Upstream.PublicURL == "" {
		c.Upstream.PublicURL = DefaultPublicURL
	}
	if c.Auth.PostLogoutRedirect == "" {
		c.Auth.PostLogoutRedirect = c.Upstream.PublicURL
	}
	c.Auth.LogoutMode = strings.ToLower(strings.TrimSpace(c.Auth.LogoutMode))
	if c.Auth.LogoutMode == "" {
		c.Auth.LogoutMode = LogoutModeLocal
	}
	if c.Auth.LocalLogoutRedirect == "" {
		c.Auth.LocalLogoutRedirect = DefaultLocalLogoutRedirect
	}
	if c.Branding.FaviconURL == "" {
		c.Branding.FaviconURL = c.Branding.AvatarURL
	}
	if c.Branding.LogoURL == "" {
		c.Branding.LogoURL = c.Branding.AvatarURL
		if !strings.Contains(c.Branding.LogoURL, "://") {
			c.Branding.LogoURL = strings.TrimRight(c.Upstream.PublicURL, "/") + "/" + strings.TrimLeft(c.Branding.AvatarURL, "/")
		}
	}
	c.Monitoring.LogLevel = strings.ToLower(strings.TrimSpace(c.Monitoring.LogLevel))
	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = DefaultLogLevel
	}

	c.OCR.BaseURL = strings.TrimRight(strings.TrimSpace(c.OCR.BaseURL), "/")
	c.OCR.MaxImages = max(c.OCR.MaxImages, MinOCRMaxImages)
	c.OCR.MaxImageBytes = max(c.OCR.MaxImageBytes, MinOCRMaxImageBytes)
	c.OCR.MaxTextChars = max(c.OCR.MaxTextChars, MinOCRMaxTextChars)
	c.OCR.Timeout = max(c.OCR.Timeout, MinOCRTimeout)
	c.OCR.CacheTTL = max(c.OCR.CacheTTL, MinFileCacheTTL)
	if c.OCR.CacheSize <= 0 {
		c.OCR.CacheSize = DefaultFileCacheSize
	}

	if c.Storage.Region == "" {
		c.Storage.Region = DefaultS3Region
	}
	c.Storage.PresignExpires = max(c.Storage.PresignExpires, MinPresignExpires)

	if c.TTS.GoogleMaxChars <= 0 {
		c.TTS.GoogleMaxChars = DefaultGoogleTTSMaxChars
	}
	if c.TTS.DefaultEdgeVoice == "" {
		c.TTS.DefaultEdgeVoice = DefaultEdgeVoice
	}

	c.MCP.RequestTimeout = max(c.MCP.RequestTimeout, MinMCPRequestTimeout)
	c.MCP.StatusTimeout = max(c.MCP.StatusTimeout, MinMCPStatusTimeout)
	for mode, endpoint := range c.MCP.Endpoints {
		c.MCP.Endpoints[mode] = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
	c.MCP.AdminEmails = lowerAll(c.MCP.AdminEmails)
	c.MCP.AdminRoles = lowerAll(c.MCP.AdminRoles)
	for mode, tools := range c.MCP.PrivilegedTools {
		c.MCP.PrivilegedTools[mode] = lowerAll(tools)
	}
	if c.MCP.RateBurst <= 0 {
		c.MCP.RateBurst = DefaultMCPRateBurst
	}
	c.Logto.BrandingHosts = lowerAll(c.Logto.BrandingHosts)
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Upstream.Host == "" {
		return fmt.Errorf("upstream.host is required")
	}
	if _, err := url.Parse(c.Upstream.PublicURL); err != nil {
		return fmt.Errorf("upstream.public_url: %w", err)
	}
	switch c.Auth.LogoutMode {
	case LogoutModeLocal, LogoutModeOIDC:
	default:
		return fmt.Errorf("auth.logout_mode must be %q or %q, got %q", LogoutModeLocal, LogoutModeOIDC, c.Auth.LogoutMode)
	}
	if c.Auth.LogoutMode == LogoutModeOIDC {
		if _, err := url.Parse(c.Auth.EndSessionEndpoint); err != nil {
			return fmt.Errorf("auth.end_session_endpoint: %w", err)
		}
	}
	return nil
}

// InternalHosts lists hostnames that must never reach a client in a Location header.
func (c *Config) InternalHosts() []string {
	return []string{c.Upstream.Host, DefaultAppHost, "lobe", c.Logto.Host, DefaultLogtoHost}
}

// =============================================================================
// ENV EXPANSION
// =============================================================================

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvWithDefaults replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string.
func ExpandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[2]
	})
}

func splitCSV(value string, lower bool) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if lower {
			item = strings.ToLower(item)
		}
		out = append(out, item)
	}
	return out
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
