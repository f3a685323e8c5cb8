// Package gateway - mcp_handler.go serves the tool-call gateway.
//
// DESIGN: Every route authenticates first, then:
//   - status: probes each bridge and reports the caller's auth type
//   - tools:  lists one mode's tools (mode from the query string)
//   - call:   parses, authorizes and forwards one tool call, never retried
//
// All responses are JSON with no-store. Bridge failures keep the bridge's
// status and error payload.
package gateway

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/legalchat/auth-gateway/internal/mcp"
	"github.com/legalchat/auth-gateway/internal/monitoring"
)

const invalidModeMessage = `Missing or invalid mode. Use "deep-research" or "pruefungsmodus".`

type toolsBody struct {
	Mode   string `json:"mode"`
	OK     bool   `json:"ok"`
	Result any    `json:"result"`
}

type callBody struct {
	Mode   string `json:"mode"`
	OK     bool   `json:"ok"`
	Result any    `json:"result"`
	Tool   string `json:"tool"`
}

type deniedBody struct {
	Error string `json:"error"`
	Mode  string `json:"mode"`
	OK    bool   `json:"ok"`
	Tool  string `json:"tool"`
}

// rateLimited rejects MCP requests beyond the configured rate with 429.
func (g *Gateway) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.limiter != nil && !g.limiter.Allow() {
			mode := mux.Vars(r)["mode"]
			g.metrics.RecordMCP(mode, monitoring.MCPOutcomeRateLimited)
			setDetail(r, "rate_limited")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many MCP requests. Try again shortly.")
			return
		}
		next(w, r)
	}
}

// authenticate writes the access error and returns nil when the caller is rejected.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) *mcp.Access {
	access, err := g.mcpAuth.Authenticate(r.Context(), r)
	if err != nil {
		setDetail(r, "access_denied")
		writeError(w, mcp.HTTPStatus(err), mcp.Message(err))
		return nil
	}
	return access
}

// writeBridgeError relays a bridge failure with extra fields merged in.
func writeBridgeError(w http.ResponseWriter, err error, extra map[string]any) {
	var be *mcp.BridgeError
	if !errors.As(err, &be) {
		be = &mcp.BridgeError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	payload := be.Payload()
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, be.Status, payload)
}

func (g *Gateway) handleMCPStatus(w http.ResponseWriter, r *http.Request) {
	access := g.authenticate(w, r)
	if access == nil {
		return
	}
	writeJSON(w, http.StatusOK, g.tools.Status(r.Context(), access))
}

func (g *Gateway) handleMCPTools(w http.ResponseWriter, r *http.Request) {
	if g.authenticate(w, r) == nil {
		return
	}
	mode := mcp.NormalizeMode(r.URL.Query().Get("mode"))
	if mode == "" {
		writeError(w, http.StatusBadRequest, invalidModeMessage)
		return
	}
	setDetail(r, "tools:"+mode)

	result, err := g.tools.Tools(r.Context(), mode)
	if err != nil {
		writeBridgeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toolsBody{Mode: mode, OK: true, Result: result})
}

// handleMCPCall serves the generic call route and the per-mode routes, where
// mode and tool may come from the path.
func (g *Gateway) handleMCPCall(w http.ResponseWriter, r *http.Request) {
	access := g.authenticate(w, r)
	if access == nil {
		return
	}

	vars := mux.Vars(r)
	tool := vars["tool"]
	if tool != "" {
		decoded, err := url.PathUnescape(tool)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing tool name.")
			return
		}
		tool = decoded
	}

	body, ok := g.readBody(w, r, jsonTooLarge)
	if !ok {
		return
	}
	call, err := mcp.ParseToolCall(body, vars["mode"], tool)
	if err != nil {
		writeError(w, http.StatusBadRequest, mcp.BadRequestMessage(err))
		return
	}
	setDetail(r, call.Mode+":"+call.Name)

	if err := g.policy.Authorize(access, call.Mode, call.Name); err != nil {
		g.metrics.RecordMCP(call.Mode, monitoring.MCPOutcomeDenied)
		writeJSON(w, mcp.HTTPStatus(err), deniedBody{
			Error: mcp.Message(err),
			Mode:  call.Mode,
			OK:    false,
			Tool:  call.Name,
		})
		return
	}

	result, err := g.tools.Call(r.Context(), call)
	if err != nil {
		g.metrics.RecordMCP(call.Mode, monitoring.MCPOutcomeError)
		writeBridgeError(w, err, map[string]any{"mode": call.Mode, "tool": call.Name})
		return
	}
	g.metrics.RecordMCP(call.Mode, monitoring.MCPOutcomeOK)
	writeJSON(w, http.StatusOK, callBody{Mode: call.Mode, OK: true, Result: result, Tool: call.Name})
}
