// Package gateway - tts_handler.go serves the OpenAI speech path through the
// fallback chain.
package gateway

import (
	"net/http"

	"github.com/legalchat/auth-gateway/internal/monitoring"
	"github.com/legalchat/auth-gateway/internal/tts"
	"github.com/legalchat/auth-gateway/internal/upstream"
)

func (g *Gateway) handleTTS(w http.ResponseWriter, r *http.Request) {
	body, ok := g.readBody(w, r, textTooLarge)
	if !ok {
		return
	}

	resp, err := g.speech.Synthesize(r.Context(), r, body)
	if err != nil {
		g.metrics.RecordTTS("failed")
		monitoring.Ctx(r.Context()).Error().Err(err).Msg("tts proxy failed")
		writeText(w, http.StatusBadGateway, textTTSProxy)
		return
	}

	stage := resp.Header.Get(tts.FallbackHeader)
	switch {
	case stage != "":
	case resp.OK():
		stage = "primary"
	default:
		stage = "failed"
	}
	g.metrics.RecordTTS(stage)
	setDetail(r, "tts:"+stage)
	upstream.Write(w, resp)
}
