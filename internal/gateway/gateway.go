// Package gateway - gateway.go wires every lane of the reverse proxy.
//
// DESIGN: New() builds all collaborators from one Config, once:
//   - upstream clients and streaming proxies for the app and the identity provider
//   - the auth bridge, OCR pipeline, TTS chain and MCP service
//   - branding renderers, metrics and telemetry
//
// Handler() returns the mux router; Start()/Shutdown() manage the listener.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/legalchat/auth-gateway/internal/authbridge"
	"github.com/legalchat/auth-gateway/internal/branding"
	"github.com/legalchat/auth-gateway/internal/config"
	"github.com/legalchat/auth-gateway/internal/filecache"
	"github.com/legalchat/auth-gateway/internal/mcp"
	"github.com/legalchat/auth-gateway/internal/monitoring"
	"github.com/legalchat/auth-gateway/internal/ocr"
	"github.com/legalchat/auth-gateway/internal/sigv4"
	"github.com/legalchat/auth-gateway/internal/tts"
	"github.com/legalchat/auth-gateway/internal/upstream"
)

// Version is reported in the init event; cmd overrides it at build time.
var Version = "dev"

// Gateway is the LegalChat auth gateway.
type Gateway struct {
	cfg       *config.Config
	appOrigin string

	// Upstreams
	app        *upstream.Client
	appProxy   *upstream.Proxy
	logtoProxy *upstream.Proxy
	rewriter   *upstream.LocationRewriter

	// Lanes
	bridge   *authbridge.Bridge
	logout   authbridge.LogoutPolicy
	cache    *filecache.Cache
	signer   *sigv4.Signer
	enricher *ocr.Enricher
	speech   *tts.Chain
	mcpAuth  *mcp.Authenticator
	policy   *mcp.Policy
	tools    *mcp.Service
	limiter  *rate.Limiter

	// Branding
	page          *branding.Page
	helper        *branding.Helper
	brandingHosts map[string]bool

	// Observability
	metrics *monitoring.MetricsCollector
	tracker *monitoring.Tracker

	router *mux.Router
	server *http.Server
}

// New creates a gateway from a normalized configuration.
func New(cfg *config.Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	g := &Gateway{
		cfg:           cfg,
		appOrigin:     originOf(cfg.Upstream.PublicURL),
		metrics:       monitoring.NewMetricsCollector(),
		brandingHosts: make(map[string]bool),
	}
	for _, host := range cfg.Logto.BrandingHosts {
		g.brandingHosts[upstream.HostWithoutPort(host)] = true
	}

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.TelemetryPath != "" || cfg.Monitoring.LogRequests,
		LogPath:     cfg.Monitoring.TelemetryPath,
		LogToStdout: cfg.Monitoring.LogRequests,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	g.tracker = tracker

	if err := g.initUpstreams(); err != nil {
		return nil, err
	}
	if err := g.initOCR(); err != nil {
		return nil, err
	}
	if err := g.initSpeech(); err != nil {
		return nil, err
	}
	g.initMCP()
	g.initBranding()

	g.router = g.buildRouter()
	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g.tracker.RecordInit(buildInitEvent(cfg, g))
	return g, nil
}

// =============================================================================
// WIRING
// =============================================================================

func (g *Gateway) initUpstreams() error {
	cfg := g.cfg
	g.rewriter = upstream.NewLocationRewriter(cfg.InternalHosts(), []string{
		upstream.HostPort(cfg.Upstream.Host, cfg.Upstream.Port),
		upstream.HostPort(cfg.Logto.Host, cfg.Logto.Port),
	})

	app, err := upstream.NewClient(cfg.Upstream.BaseURL(), upstream.WithTimeout(cfg.Server.WriteTimeout))
	if err != nil {
		return fmt.Errorf("app client: %w", err)
	}
	g.app = app

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if g.appProxy, err = upstream.NewProxy("app", cfg.Upstream.BaseURL(), transport, g.modifyAppResponse); err != nil {
		return fmt.Errorf("app proxy: %w", err)
	}
	if g.logtoProxy, err = upstream.NewProxy("logto", cfg.Logto.BaseURL(), transport, g.modifyLogtoResponse); err != nil {
		return fmt.Errorf("logto proxy: %w", err)
	}

	g.bridge = authbridge.New(app, g.rewriter, authbridge.Options{
		PublicURL:      cfg.Upstream.PublicURL,
		SessionTimeout: cfg.Auth.SessionTimeout,
	})
	g.logout = authbridge.LogoutPolicy{
		Mode:                cfg.Auth.LogoutMode,
		EndSessionEndpoint:  cfg.Auth.EndSessionEndpoint,
		ClientID:            cfg.Auth.ClientID,
		PostLogoutRedirect:  cfg.Auth.PostLogoutRedirect,
		LocalLogoutRedirect: cfg.Auth.LocalLogoutRedirect,
		PublicURL:           cfg.Upstream.PublicURL,
	}
	return nil
}

func (g *Gateway) initOCR() error {
	cfg := g.cfg
	cache, err := filecache.New(cfg.OCR.CacheTTL, cfg.OCR.CacheSize)
	if err != nil {
		return fmt.Errorf("file cache: %w", err)
	}
	g.cache = cache
	g.metrics.Registry().MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "legalchat_gateway",
		Subsystem: "file_cache",
		Name:      "entries",
		Help:      "File mappings currently cached.",
	}, func() float64 { return float64(cache.Len()) }))

	creds, err := sigv4.NewCredentialsProvider(context.Background(),
		cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, cfg.Storage.Region, cfg.Storage.UseSDKCredentials)
	if err != nil {
		log.Warn().Err(err).Msg("s3 credentials unavailable, presigned downloads disabled")
	}
	g.signer, err = sigv4.New(sigv4.Config{
		Endpoint:    cfg.Storage.Endpoint,
		Bucket:      cfg.Storage.Bucket,
		Region:      cfg.Storage.Region,
		PathStyle:   cfg.Storage.PathStyle,
		Expires:     cfg.Storage.PresignExpires,
		Credentials: creds,
	})
	if err != nil {
		return fmt.Errorf("s3 signer: %w", err)
	}

	var vision ocr.Extractor
	if cfg.OCR.Active() {
		vc, err := ocr.NewVisionClient(cfg.OCR.BaseURL, cfg.OCR.APIKey, cfg.OCR.Model, cfg.OCR.Timeout)
		if err != nil {
			return fmt.Errorf("vision client: %w", err)
		}
		vc.SetPrompt(cfg.OCR.Prompt)
		vision = vc
	}

	resolver := ocr.NewResolver(cfg.Upstream.BaseURL(), cache, g.signer, cfg.Storage.Bucket, cfg.Storage.PublicDomain)
	downloader := ocr.NewDownloader(g.app, cfg.OCR.MaxImageBytes, cfg.OCR.Timeout)
	g.enricher = ocr.NewEnricher(g.app, cache, resolver, downloader, vision, ocr.Options{
		Enabled:      cfg.OCR.Enabled,
		APIKeySet:    cfg.OCR.APIKey != "",
		MaxImages:    cfg.OCR.MaxImages,
		MaxTextChars: cfg.OCR.MaxTextChars,
	})
	return nil
}

func (g *Gateway) initSpeech() error {
	cfg := g.cfg
	var google *tts.GoogleClient
	if cfg.TTS.GoogleFallback {
		gc, err := tts.NewGoogleClient(cfg.TTS.GoogleHost, cfg.TTS.GoogleClient, cfg.TTS.GoogleMaxChars)
		if err != nil {
			return fmt.Errorf("google tts client: %w", err)
		}
		google = gc
	}
	g.speech = tts.NewChain(g.app, g.rewriter, google, tts.Options{
		EdgeEnabled:      cfg.TTS.EdgeFallback,
		GoogleEnabled:    cfg.TTS.GoogleFallback,
		DefaultEdgeVoice: cfg.TTS.DefaultEdgeVoice,
	})
	return nil
}

func (g *Gateway) initMCP() {
	cfg := g.cfg.MCP
	g.mcpAuth = mcp.NewAuthenticator(cfg.Enabled, cfg.AdminBearerToken, cfg.BearerToken, g.bridge)
	g.policy = mcp.NewPolicy(cfg.AdminEmails, cfg.AdminRoles, cfg.PrivilegedTools)
	g.tools = mcp.NewService(mcp.Options{
		Enabled:        cfg.Enabled,
		Endpoints:      cfg.Endpoints,
		RequestTimeout: cfg.RequestTimeout,
		StatusTimeout:  cfg.StatusTimeout,
	})
	if cfg.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
}

func (g *Gateway) initBranding() {
	b := g.cfg.Branding
	g.page = branding.NewPage(branding.Options{
		AppName:              b.AppName,
		Version:              b.Version,
		AvatarURL:            b.AvatarURL,
		FaviconURL:           b.FaviconURL,
		AgentName:            b.AgentName,
		DisableServiceWorker: b.DisableServiceWorker,
		VoiceOff:             g.cfg.TTS.VoiceOff,
		MCPEnabled:           g.cfg.MCP.Enabled,
	})
	g.helper = branding.NewHelper(branding.HelperOptions{
		AppName:       b.AppName,
		AppOrigin:     g.appOrigin,
		AvatarURL:     b.AvatarURL,
		Version:       b.Version,
		AgentName:     b.AgentName,
		AssistantRole: b.AssistantRole,
		ForcePrompt:   g.cfg.Auth.ForceLoginPrompt,
	})
}

// originOf returns scheme://host of a URL, or the input when it does not parse.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Metrics returns the gateway's metrics collector.
func (g *Gateway) Metrics() *monitoring.MetricsCollector {
	return g.metrics
}

// SigningReady reports whether presigned object downloads are available.
func (g *Gateway) SigningReady() bool {
	return g.signer.Ready()
}

// Start listens on the configured port and blocks until the server stops.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.server.Addr, err)
	}
	return g.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (g *Gateway) Serve(ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")
	if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and flushes telemetry.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	_ = g.tracker.Close()
	return err
}
