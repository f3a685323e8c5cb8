package gateway

import (
	"sort"
	"time"

	"github.com/legalchat/auth-gateway/internal/config"
	"github.com/legalchat/auth-gateway/internal/monitoring"
)

func buildInitEvent(cfg *config.Config, g *Gateway) *monitoring.InitEvent {
	ev := &monitoring.InitEvent{
		Timestamp:            time.Now(),
		Event:                "gateway_init",
		Version:              Version,
		ServerPort:           cfg.Server.Port,
		ServerReadTimeoutMs:  cfg.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: cfg.Server.WriteTimeout.Milliseconds(),
		Upstream:             cfg.Upstream.BaseURL(),
		PublicURL:            cfg.Upstream.PublicURL,
		LogoutMode:           cfg.Auth.LogoutMode,
		VoiceMode:            "guarded",
		OCRActive:            cfg.OCR.Active(),
		StorageReady:         g.SigningReady(),
		MCPEnabled:           cfg.MCP.Enabled,
		TelemetryPath:        cfg.Monitoring.TelemetryPath,
	}
	if cfg.TTS.VoiceOff {
		ev.VoiceMode = "off"
	}
	if ev.OCRActive {
		ev.OCRModel = cfg.OCR.Model
	}

	for mode := range cfg.MCP.Endpoints {
		if g.tools.Configured(mode) {
			ev.MCPModes = append(ev.MCPModes, mode)
		}
	}
	sort.Strings(ev.MCPModes)

	if cfg.Logto.BrandingEnabled {
		ev.BrandingHosts = append([]string(nil), cfg.Logto.BrandingHosts...)
		sort.Strings(ev.BrandingHosts)
	}

	ev.Extra = map[string]any{
		"tts_edge_fallback":   cfg.TTS.EdgeFallback,
		"tts_google_fallback": cfg.TTS.GoogleFallback,
		"mcp_rate_limit":      cfg.MCP.RateLimit,
		"file_cache_ttl":      cfg.OCR.CacheTTL.String(),
	}
	return ev
}
