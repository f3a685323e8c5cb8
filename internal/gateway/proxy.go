// Package gateway - proxy.go is the catch-all lane to the chat app.
//
// DESIGN: Responses stream through httputil.ReverseProxy. Only first-party
// HTML pages are buffered, because the branding snippet is injected into them:
//   - page requests ask the app for an uncompressed body (Accept-Encoding: identity)
//   - pages and branding assets are marked no-store
//   - Location headers on internal hosts are made public
package gateway

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/legalchat/auth-gateway/internal/branding"
)

// handleProxy forwards any request no other lane claimed.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	if isPageRequest(r) {
		r.Header.Set("Accept-Encoding", "identity")
	}
	g.appProxy.ServeHTTP(w, r)
}

// modifyAppResponse runs on every proxied app response. resp.Request is the
// outbound request, which still carries the public host and protocol.
func (g *Gateway) modifyAppResponse(resp *http.Response) error {
	req := resp.Request
	g.rewriter.RewriteHeader(resp.Header, req)

	page := isPageRequest(req)
	if page || (isGetOrHead(req) && branding.IsAssetPath(req.URL.Path)) {
		branding.SetNoStore(resp.Header)
	}
	if !page || req.Method != http.MethodGet || !isHTMLResponse(resp.Header) {
		return nil
	}

	doc, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	replaceBody(resp, []byte(g.page.Rewrite(string(doc))))
	log.Debug().Str("path", req.URL.Path).Msg("branding injected")
	return nil
}

// replaceBody swaps a response body for a rewritten, uncompressed one.
func replaceBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.TransferEncoding = nil
	resp.Uncompressed = false
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Transfer-Encoding")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}
