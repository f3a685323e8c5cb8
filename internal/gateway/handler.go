// HTTP response helpers and the small fixed lanes.
//
// DESIGN: Two error shapes, never mixed within a lane:
//   - writeText(): plain text for browser lanes ("Bad Gateway", ...)
//   - writeJSON(): {"error": ..., "ok": false} style bodies for API lanes
//
// Buffered lanes read the request body through readBody(), which enforces the
// configured body limit and maps overflow to 413.
package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/legalchat/auth-gateway/internal/upstream"
	"github.com/legalchat/auth-gateway/internal/utils"
)

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// writeJSON writes v as an uncacheable JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := utils.MarshalNoEscape(v)
	if err != nil {
		log.Error().Err(err).Msg("encode json response")
		status = http.StatusInternalServerError
		data = []byte(`{"error":"Internal error.","ok":false}`)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes the API lanes' JSON error shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, OK: false})
}

// redirect writes a 302 with no-store.
func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// readBody reads the request body up to the configured limit. ok is false when
// a response (413 or 400) has already been written; tooLarge writes it.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request, tooLarge func(http.ResponseWriter)) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.Server.MaxBodyBytes))
	if err == nil {
		return body, true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		log.Warn().Int64("limit", maxErr.Limit).Str("path", r.URL.Path).Msg("request body too large")
		tooLarge(w)
		return nil, false
	}
	log.Warn().Err(err).Str("path", r.URL.Path).Msg("read request body")
	writeText(w, http.StatusBadRequest, "Bad Request")
	return nil, false
}

func textTooLarge(w http.ResponseWriter) {
	writeText(w, http.StatusRequestEntityTooLarge, textPayloadTooLarge)
}

func jsonTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
}

// relay writes a buffered upstream response with its Location made public.
func (g *Gateway) relay(w http.ResponseWriter, r *http.Request, resp *upstream.Response) {
	g.rewriter.RewriteHeader(resp.Header, r)
	upstream.Write(w, resp)
}

// =============================================================================
// FIXED LANES
// =============================================================================

// handleHealth answers the container health check.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// handleVoiceDisabled blocks every speech path while voice is off.
func handleVoiceDisabled(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(HeaderVoiceMode, "off")
	setDetail(r, "voice_off")
	writeJSON(w, http.StatusForbidden, voiceDisabledBody{
		Error:   voiceDisabledCode,
		Message: voiceDisabledMessage,
	})
}
