// Package monitoring - metrics.go collects operational counters.
//
// DESIGN: Every Record* call updates two views of the same event:
//   - atomic counters: cheap totals for the JSON /stats endpoint
//   - Prometheus:      labelled series on a private registry for /metrics
//
// Label values are drawn from fixed sets (lanes, OCR reasons, TTS stages, MCP
// outcomes) so cardinality stays bounded.
package monitoring

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "legalchat_gateway"

// MCP call outcomes.
const (
	MCPOutcomeOK          = "ok"
	MCPOutcomeDenied      = "denied"
	MCPOutcomeError       = "error"
	MCPOutcomeRateLimited = "rate_limited"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time
	registry  *prometheus.Registry

	// Request counters
	requests  atomic.Int64
	successes atomic.Int64

	// Feature counters
	ocrInjected     atomic.Int64
	ocrBypassed     atomic.Int64
	filesRemembered atomic.Int64
	ttsFallbacks    atomic.Int64
	ttsFailures     atomic.Int64
	mcpCalls        atomic.Int64
	mcpDenied       atomic.Int64
	signins         atomic.Int64
	signinFailures  atomic.Int64

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ocrOutcomes     *prometheus.CounterVec
	ocrFiles        prometheus.Counter
	fileCacheWrites prometheus.Counter
	ttsStages       *prometheus.CounterVec
	mcpOutcomes     *prometheus.CounterVec
	signinOutcomes  *prometheus.CounterVec
}

// NewMetricsCollector creates a collector with its own registry.
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		startedAt: time.Now(),
		registry:  prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests answered, by router lane and status code class.",
		}, []string{"lane", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time to answer a request, by router lane.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"lane"}),
		ocrOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "requests_total",
			Help:      "Send-message requests seen by the OCR lane, by outcome.",
		}, []string{"outcome"}),
		ocrFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "files_total",
			Help:      "Attachments whose text was injected.",
		}),
		fileCacheWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "file_cache",
			Name:      "writes_total",
			Help:      "File mappings remembered from file-create responses.",
		}),
		ttsStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tts",
			Name:      "responses_total",
			Help:      "Speech responses, by the stage that produced them.",
		}, []string{"stage"}),
		mcpOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "calls_total",
			Help:      "Tool calls, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		signinOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "signin_translations_total",
			Help:      "Sign-in GET to POST translations, by outcome.",
		}, []string{"outcome"}),
	}

	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mc.requestsTotal,
		mc.requestDuration,
		mc.ocrOutcomes,
		mc.ocrFiles,
		mc.fileCacheWrites,
		mc.ttsStages,
		mc.mcpOutcomes,
		mc.signinOutcomes,
	)
	return mc
}

// Registry exposes the collector's registry, for extra collectors such as gauges
// over the file cache.
func (mc *MetricsCollector) Registry() *prometheus.Registry { return mc.registry }

// Handler serves the registry in the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordRequest records an answered request. Status codes below 500 count as
// successes.
func (mc *MetricsCollector) RecordRequest(lane Lane, status int, d time.Duration) {
	mc.requests.Add(1)
	if status < http.StatusInternalServerError {
		mc.successes.Add(1)
	}
	mc.requestsTotal.WithLabelValues(string(lane), statusClass(status)).Inc()
	mc.requestDuration.WithLabelValues(string(lane)).Observe(d.Seconds())
}

// RecordOCR records one pass of the OCR lane. outcome is "injected" or the
// bypass reason.
func (mc *MetricsCollector) RecordOCR(outcome string, files int) {
	if files > 0 {
		mc.ocrInjected.Add(1)
		mc.ocrFiles.Add(float64(files))
	} else {
		mc.ocrBypassed.Add(1)
	}
	mc.ocrOutcomes.WithLabelValues(outcome).Inc()
}

// RecordFilesRemembered records file mappings written to the cache.
func (mc *MetricsCollector) RecordFilesRemembered(n int) {
	if n <= 0 {
		return
	}
	mc.filesRemembered.Add(int64(n))
	mc.fileCacheWrites.Add(float64(n))
}

// RecordTTS records which stage answered a speech request. stage is "primary",
// a fallback stage name, or "failed" when every stage failed.
func (mc *MetricsCollector) RecordTTS(stage string) {
	switch stage {
	case "primary":
	case "failed":
		mc.ttsFailures.Add(1)
	default:
		mc.ttsFallbacks.Add(1)
	}
	mc.ttsStages.WithLabelValues(stage).Inc()
}

// RecordMCP records a tool call decision.
func (mc *MetricsCollector) RecordMCP(mode, outcome string) {
	if mode == "" {
		mode = "unknown"
	}
	mc.mcpCalls.Add(1)
	if outcome == MCPOutcomeDenied {
		mc.mcpDenied.Add(1)
	}
	mc.mcpOutcomes.WithLabelValues(mode, outcome).Inc()
}

// RecordSignin records a sign-in translation.
func (mc *MetricsCollector) RecordSignin(success bool) {
	mc.signins.Add(1)
	outcome := "ok"
	if !success {
		mc.signinFailures.Add(1)
		outcome = "error"
	}
	mc.signinOutcomes.WithLabelValues(outcome).Inc()
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":         mc.requests.Load(),
		"successes":        mc.successes.Load(),
		"ocr_injected":     mc.ocrInjected.Load(),
		"ocr_bypassed":     mc.ocrBypassed.Load(),
		"files_remembered": mc.filesRemembered.Load(),
		"tts_fallbacks":    mc.ttsFallbacks.Load(),
		"tts_failures":     mc.ttsFailures.Load(),
		"mcp_calls":        mc.mcpCalls.Load(),
		"mcp_denied":       mc.mcpDenied.Load(),
		"signins":          mc.signins.Load(),
	}
}

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:      requests,
			Successful: successes,
			Failed:     requests - successes,
		},
		OCR: OCRStats{
			Injected:        mc.ocrInjected.Load(),
			Bypassed:        mc.ocrBypassed.Load(),
			FilesRemembered: mc.filesRemembered.Load(),
		},
		TTS: TTSStats{
			Fallbacks: mc.ttsFallbacks.Load(),
			Failures:  mc.ttsFailures.Load(),
		},
		MCP: MCPStats{
			Calls:  mc.mcpCalls.Load(),
			Denied: mc.mcpDenied.Load(),
		},
		Auth: AuthStats{
			SigninTranslations: mc.signins.Load(),
			SigninFailures:     mc.signinFailures.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string       `json:"uptime"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartedAt     string       `json:"started_at"`
	Requests      RequestStats `json:"requests"`
	OCR           OCRStats     `json:"ocr"`
	TTS           TTSStats     `json:"tts"`
	MCP           MCPStats     `json:"mcp"`
	Auth          AuthStats    `json:"auth"`
	FileCache     int          `json:"file_cache_entries"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// OCRStats holds enrichment metrics.
type OCRStats struct {
	Injected        int64 `json:"injected"`
	Bypassed        int64 `json:"bypassed"`
	FilesRemembered int64 `json:"files_remembered"`
}

// TTSStats holds speech fallback metrics.
type TTSStats struct {
	Fallbacks int64 `json:"fallbacks"`
	Failures  int64 `json:"failures"`
}

// MCPStats holds tool-call metrics.
type MCPStats struct {
	Calls  int64 `json:"calls"`
	Denied int64 `json:"denied"`
}

// AuthStats holds sign-in metrics.
type AuthStats struct {
	SigninTranslations int64 `json:"signin_translations"`
	SigninFailures     int64 `json:"signin_failures"`
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
