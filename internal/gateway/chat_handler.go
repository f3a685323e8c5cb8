// Package gateway - chat_handler.go serves the buffered chat app lanes.
//
// DESIGN: Both lanes read the whole tRPC body, call the app once and relay the
// buffered response:
//   - file create: remembers the created files so OCR can find them later
//   - send message: appends OCR text for attached JPEGs before forwarding
//
// Accept-Encoding is dropped on these calls so the transport negotiates and
// decodes compression and the response body stays parseable.
package gateway

import (
	"net/http"

	"github.com/legalchat/auth-gateway/internal/monitoring"
	"github.com/legalchat/auth-gateway/internal/ocr"
	"github.com/legalchat/auth-gateway/internal/upstream"
)

// forward sends body to the app with the caller's method, URI and headers.
func (g *Gateway) forward(r *http.Request, body []byte) (*upstream.Response, error) {
	header := upstream.ForwardHeaders(r)
	header.Del("Accept-Encoding")
	return g.app.Do(r.Context(), upstream.Request{
		Method: r.Method,
		URL:    upstream.URI(r),
		Header: header,
		Body:   body,
	})
}

func (g *Gateway) handleFileCreate(w http.ResponseWriter, r *http.Request) {
	body, ok := g.readBody(w, r, textTooLarge)
	if !ok {
		return
	}
	logger := monitoring.Ctx(r.Context())

	resp, err := g.forward(r, body)
	if err != nil {
		logger.Error().Err(err).Msg("file create cache proxy failed")
		writeText(w, http.StatusBadGateway, textFileCacheProxy)
		return
	}

	if stored := ocr.RememberFileCreate(g.cache, body, resp.Body); stored > 0 {
		g.metrics.RecordFilesRemembered(stored)
		logger.Info().Int("mappings", stored).Msg("cached file.createFile mappings")
	}
	g.relay(w, r, resp)
}

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	body, ok := g.readBody(w, r, textTooLarge)
	if !ok {
		return
	}
	logger := monitoring.Ctx(r.Context())

	outcome := g.enricher.Enrich(r.Context(), body, r.Header)
	if outcome.Injected {
		g.metrics.RecordOCR("injected", outcome.Items)
		setDetail(r, "ocr_injected")
		logger.Info().Int("files", outcome.Items).Str("model", g.cfg.OCR.Model).Msg("injected OCR text")
	} else {
		g.metrics.RecordOCR(outcome.Reason, 0)
		setDetail(r, "ocr_bypass:"+outcome.Reason)
		logger.Info().Str("reason", outcome.Reason).Msg("OCR bypass")
	}

	resp, err := g.forward(r, outcome.Body)
	if err != nil {
		logger.Error().Err(err).Msg("auto OCR proxy failed")
		writeText(w, http.StatusBadGateway, textAutoOCRProxy)
		return
	}
	g.relay(w, r, resp)
}
