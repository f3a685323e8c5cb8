// Package upstream - proxy.go is the streaming pass-through used by the generic
// and identity provider lanes.
package upstream

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog/log"
)

// Proxy streams requests to a single upstream, keeping the browser's Host header.
type Proxy struct {
	name string
	rp   *httputil.ReverseProxy
}

// NewProxy creates a streaming proxy to target. modify may rewrite responses
// (headers, or the body for HTML pages) before they are streamed back.
func NewProxy(name, target string, transport http.RoundTripper, modify func(*http.Response) error) (*Proxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	p := &Proxy{name: name}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.Out.Host = pr.In.Host
			pr.Out.Header.Set("X-Forwarded-Host", PublicHost(pr.In))
			pr.Out.Header.Set("X-Forwarded-Proto", ForwardedProto(pr.In))
			if xff := pr.In.Header.Values("X-Forwarded-For"); len(xff) > 0 {
				pr.Out.Header["X-Forwarded-For"] = xff
			}
		},
		Transport:      transport,
		ModifyResponse: modify,
		ErrorHandler:   p.errorHandler,
		FlushInterval:  -1,
	}
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).
		Str("upstream", p.name).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("proxy error")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte("Bad Gateway"))
}
