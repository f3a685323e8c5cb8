// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Lane:          Identifies which router lane handled a request
//   - RequestEvent:  Telemetry data for each request
//   - InitEvent:     Startup summary without secrets
//   - Config types:  TelemetryConfig, LoggerConfig
package monitoring

import "time"

// =============================================================================
// LANES - Used by router, metrics and telemetry
// =============================================================================

// Lane identifies the router lane that answered a request.
type Lane string

const (
	LaneHealth        Lane = "health"
	LaneMCP           Lane = "mcp"
	LaneLogto         Lane = "logto"
	LaneLogout        Lane = "logout"
	LaneSignout       Lane = "signout"
	LaneSigninLegacy  Lane = "signin_legacy"
	LaneLoginHelper   Lane = "login_helper"
	LaneEnforceLogin  Lane = "enforce_login"
	LaneServiceWorker Lane = "service_worker"
	LaneHelperRoot    Lane = "helper_root"
	LaneSignin        Lane = "signin"
	LaneFileCreate    Lane = "file_create"
	LaneOCR           Lane = "ocr"
	LaneVoiceOff      Lane = "voice_off"
	LaneTTS           Lane = "tts"
	LaneProxy         Lane = "proxy"
	LaneOps           Lane = "ops"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures a request through the gateway.
type RequestEvent struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	Host           string    `json:"host,omitempty"`
	ClientIP       string    `json:"client_ip"`
	Lane           Lane      `json:"lane"`
	StatusCode     int       `json:"status_code"`
	ResponseBytes  int64     `json:"response_bytes"`
	TotalLatencyMs int64     `json:"total_latency_ms"`
	Success        bool      `json:"success"`
	Detail         string    `json:"detail,omitempty"` // OCR reason, TTS stage, MCP tool
}

// InitEvent captures gateway startup configuration.
type InitEvent struct {
	Timestamp            time.Time      `json:"timestamp"`
	Event                string         `json:"event"`
	Version              string         `json:"version,omitempty"`
	ServerPort           int            `json:"server_port"`
	ServerReadTimeoutMs  int64          `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64          `json:"server_write_timeout_ms"`
	Upstream             string         `json:"upstream"`
	PublicURL            string         `json:"public_url"`
	LogoutMode           string         `json:"logout_mode"`
	VoiceMode            string         `json:"voice_mode"`
	OCRActive            bool           `json:"ocr_active"`
	OCRModel             string         `json:"ocr_model,omitempty"`
	StorageReady         bool           `json:"storage_ready"`
	MCPEnabled           bool           `json:"mcp_enabled"`
	MCPModes             []string       `json:"mcp_modes,omitempty"`
	BrandingHosts        []string       `json:"branding_hosts,omitempty"`
	TelemetryPath        string         `json:"telemetry_path,omitempty"`
	Extra                map[string]any `json:"extra,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}
