// Package gateway - stats.go serves the counter snapshot.
//
// GET /stats returns request, OCR, TTS, MCP and sign-in counters plus the
// number of cached file mappings. The route only matches loopback callers.
package gateway

import (
	"encoding/json"
	"net/http"
)

func (g *Gateway) handleStats(w http.ResponseWriter, _ *http.Request) {
	snapshot := g.metrics.FullStats()
	snapshot.FileCache = g.cache.Len()

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-cache")
	_ = json.NewEncoder(w).Encode(snapshot)
}
