// Package branding rewrites upstream HTML so pages carry the LegalChat brand.
//
// DESIGN: Pure string transforms over fully buffered HTML, no DOM parsing:
//   - Page.Rewrite():     head metadata, brand names and the once-only snippet
//   - PatchLogto():       the identity provider's SSR sign-in payload
//   - LogtoRedirect():    redirects on the branded identity provider host
//   - Helper:             the /login helper page (html/template)
//
// The browser-side branding script and stylesheet are only referenced here; they
// are served by the chat application.
package branding

import (
	"encoding/json"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/legalchat/auth-gateway/internal/config"
)

// CacheControl is set on branded pages and branding assets.
const CacheControl = "no-store, no-cache, must-revalidate, proxy-revalidate"

// Asset paths served by the app that must never be cached.
const (
	StylesheetPath = "/custom.css"
	ScriptPath     = "/legalchat-branding.js"
)

// snippetMarker is present once the snippet has been injected.
const snippetMarker = `data-legalchat-branding="1"`

// MCPBasePath prefixes the tool-call routes published in the runtime config.
const MCPBasePath = "/api/legalchat/mcp"

// Options configures the HTML rewriter.
type Options struct {
	AppName              string
	Version              string
	AvatarURL            string
	FaviconURL           string
	AgentName            string
	DisableServiceWorker bool
	VoiceOff             bool
	MCPEnabled           bool
}

// Page rewrites chat application HTML.
type Page struct {
	appName    string
	faviconURL string
	snippet    string
}

// NewPage builds a rewriter. The snippet is rendered once.
func NewPage(opts Options) *Page {
	favicon := WithVersion(opts.FaviconURL, opts.Version)
	return &Page{
		appName:    opts.AppName,
		faviconURL: favicon,
		snippet:    buildSnippet(opts, favicon),
	}
}

// WithVersion appends ?v=version to u unless u is empty or already versioned.
func WithVersion(u, version string) string {
	u = strings.TrimSpace(u)
	if u == "" || version == "" || versionParam.MatchString(u) {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "v=" + url.QueryEscape(version)
}

var versionParam = regexp.MustCompile(`[?&]v=`)

// SetNoStore replaces caching headers so branded responses are always refetched.
func SetNoStore(h http.Header) {
	h.Set("Cache-Control", CacheControl)
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Del("ETag")
	h.Del("Last-Modified")
}

// IsAssetPath reports whether path is a branding asset.
func IsAssetPath(path string) bool {
	return path == StylesheetPath || path == ScriptPath
}

// =============================================================================
// REWRITE
// =============================================================================

var (
	brandPattern = regexp.MustCompile(`(?i)Lobe\s*Hub|Lobe\s*Chat|LobeHub|LobeChat`)
	titleTag     = regexp.MustCompile(`(?is)<title[^>]*>.*?</title>`)
	brandMeta    = regexp.MustCompile(`(?i)<meta\b[^>]*(?:name|property)=["'](?:description|apple-mobile-web-app-title|og:title|og:description|og:site_name|og:image:alt|twitter:title|twitter:description)["'][^>]*>`)
	iconLink     = regexp.MustCompile(`(?i)<link\b[^>]*rel=["'](?:shortcut icon|icon|apple-touch-icon)["'][^>]*>`)
	hrefPresent  = regexp.MustCompile(`href\s*=`)
	hrefAttr     = regexp.MustCompile(`(?i)href=["'][^"']*["']`)
	tagEnd       = regexp.MustCompile(`/?>$`)
)

type phrase struct {
	pattern *regexp.Regexp
	prefix  string
}

var bodyPhrases = []phrase{
	{regexp.MustCompile(`(?i)Anmelden bei\s+(?:LobeHub|LobeChat)`), "Anmelden bei "},
	{regexp.MustCompile(`(?i)Sign in to\s+(?:LobeHub|LobeChat)`), "Sign in to "},
	{regexp.MustCompile(`(?i)Powered by\s+(?:LobeHub|LobeChat)`), "Powered by "},
	{regexp.MustCompile(`(?i)Powered by Logto`), "Powered by "},
}

var logtoLabel = regexp.MustCompile(`>\s*Logto\s*<`)

// Rewrite brands a chat application page and injects the snippet before
// </head> (or after <body>) unless it is already present.
func (p *Page) Rewrite(doc string) string {
	doc = p.RewriteHead(doc)
	for _, ph := range bodyPhrases {
		doc = ph.pattern.ReplaceAllLiteralString(doc, ph.prefix+p.appName)
	}
	doc = logtoLabel.ReplaceAllLiteralString(doc, ">Anmelden<")
	if strings.Contains(doc, snippetMarker) {
		return doc
	}

	if i := strings.Index(doc, "</head>"); i != -1 {
		return doc[:i] + p.snippet + doc[i:]
	}
	if i := strings.Index(doc, "<body"); i != -1 {
		if j := strings.Index(doc[i:], ">"); j != -1 {
			at := i + j + 1
			return doc[:at] + p.snippet + doc[at:]
		}
	}
	return doc
}

// RewriteHead replaces brand names in the title and social meta tags and points
// every icon link at the favicon. Content outside <head> is untouched.
func (p *Page) RewriteHead(doc string) string {
	open := strings.Index(doc, "<head")
	end := strings.Index(doc, "</head>")
	if open == -1 || end == -1 || end <= open {
		return doc
	}
	head := doc[open:end]

	brand := func(tag string) string {
		return brandPattern.ReplaceAllLiteralString(tag, p.appName)
	}
	head = titleTag.ReplaceAllStringFunc(head, brand)
	head = brandMeta.ReplaceAllStringFunc(head, brand)

	href := `href="` + html.EscapeString(p.faviconURL) + `"`
	head = iconLink.ReplaceAllStringFunc(head, func(tag string) string {
		if hrefPresent.MatchString(tag) {
			loc := hrefAttr.FindStringIndex(tag)
			if loc == nil {
				return tag
			}
			return tag[:loc[0]] + href + tag[loc[1]:]
		}
		loc := tagEnd.FindStringIndex(tag)
		return tag[:loc[0]] + " " + href + tag[loc[0]:]
	})

	return doc[:open] + head + doc[end:]
}

// Snippet returns the injected markup.
func (p *Page) Snippet() string {
	return p.snippet
}

// =============================================================================
// SNIPPET
// =============================================================================

type mcpRuntime struct {
	Enabled            bool   `json:"enabled"`
	APIBasePath        string `json:"apiBasePath"`
	DeepResearchPath   string `json:"deepResearchPath"`
	PruefungsmodusPath string `json:"pruefungsmodusPath"`
	GenericCallPath    string `json:"genericCallPath"`
	ToolsPath          string `json:"toolsPath"`
	StatusPath         string `json:"statusPath"`
}

type runtimeConfig struct {
	AppName          string     `json:"appName"`
	DefaultAgentName string     `json:"defaultAgentName"`
	AvatarURL        string     `json:"avatarUrl"`
	FaviconURL       string     `json:"faviconUrl"`
	BrandingVersion  string     `json:"brandingVersion"`
	VoiceMode        string     `json:"voiceMode"`
	VoiceOff         bool       `json:"voiceOff"`
	MCP              mcpRuntime `json:"mcp"`
}

const prepaintStyle = `<style data-legalchat-prepaint="1">html[data-legalchat-branding-pending="1"] body{opacity:0!important;visibility:hidden!important;}html[data-legalchat-branding-ready="1"] body{opacity:1!important;visibility:visible!important;transition:opacity .14s ease-out;}</style>`

const prepaintBootstrap = `<script data-legalchat-prepaint="1">(function(){try{var root=document.documentElement;if(!root)return;root.setAttribute('data-legalchat-branding-pending','1');var unlock=function(){root.removeAttribute('data-legalchat-branding-pending');root.setAttribute('data-legalchat-branding-ready','1');};window.__legalchatBrandingUnlock=unlock;setTimeout(unlock,2200);}catch(_error){}})();</script>`

const swCleanup = `<script data-legalchat-sw-cleanup="1">(function(){try{if('serviceWorker' in navigator){navigator.serviceWorker.getRegistrations().then(function(regs){for(var i=0;i<regs.length;i+=1){regs[i].unregister().catch(function(){});}});}if('caches' in window&&caches.keys){caches.keys().then(function(keys){for(var i=0;i<keys.length;i+=1){var name=keys[i]||'';if(/serwist|workbox|next-pwa|lobehub|lobechat/i.test(name)){caches.delete(name).catch(function(){});}}});}}catch(error){}})();</script>`

const faviconScript = `<script data-legalchat-favicon="1">(function(){try{var href=%s;var head=document.head;if(!head||!href)return;var links=head.querySelectorAll('link[rel*="icon" i]');for(var i=0;i<links.length;i+=1){links[i].setAttribute('href',href);}}catch(_error){}})();</script>`

// inlineJSON encodes v for a <script> body. encoding/json escapes <, >, &,
// U+2028 and U+2029.
func inlineJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func buildSnippet(opts Options, favicon string) string {
	voiceMode := "guarded"
	if opts.VoiceOff {
		voiceMode = "off"
	}
	rc := runtimeConfig{
		AppName:          opts.AppName,
		DefaultAgentName: opts.AgentName,
		AvatarURL:        WithVersion(opts.AvatarURL, opts.Version),
		FaviconURL:       favicon,
		BrandingVersion:  opts.Version,
		VoiceMode:        voiceMode,
		VoiceOff:         opts.VoiceOff,
		MCP: mcpRuntime{
			Enabled:            opts.MCPEnabled,
			APIBasePath:        MCPBasePath,
			DeepResearchPath:   MCPBasePath + "/" + config.ModeDeepResearch,
			PruefungsmodusPath: MCPBasePath + "/" + config.ModePruefungsmodus,
			GenericCallPath:    MCPBasePath + "/call",
			ToolsPath:          MCPBasePath + "/tools",
			StatusPath:         MCPBasePath + "/status",
		},
	}
	v := url.QueryEscape(opts.Version)

	var b strings.Builder
	b.WriteString("<!-- LegalChat Branding Assets -->")
	b.WriteString(prepaintStyle)
	b.WriteString(prepaintBootstrap)
	if opts.DisableServiceWorker {
		b.WriteString(swCleanup)
	}
	b.WriteString(`<script data-legalchat-config="1">window.__LEGALCHAT_BRANDING_CONFIG__=`)
	b.WriteString(inlineJSON(rc))
	b.WriteString(`;</script>`)
	b.WriteString(strings.Replace(faviconScript, "%s", inlineJSON(favicon), 1))
	b.WriteString(`<link rel="stylesheet" href="` + StylesheetPath + `?v=` + v + `" ` + snippetMarker + ` />`)
	b.WriteString(`<script src="` + ScriptPath + `?v=` + v + `" ` + snippetMarker + `></script>`)
	return b.String()
}
