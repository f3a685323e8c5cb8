// Package mcp - service.go talks to the per-mode bridges.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/legalchat/auth-gateway/internal/upstream"
	"github.com/legalchat/auth-gateway/internal/utils"
)

// Bridge paths.
const (
	healthPath = "/health"
	toolsPath  = "/tools"
	callPath   = "/tools/call"
)

const maxBridgeExcerpt = 600

// ErrBadRequest marks malformed tool-call input.
var ErrBadRequest = errors.New("mcp: bad request")

// BridgeError is a failed bridge call, shaped like the JSON body returned to callers.
type BridgeError struct {
	Status         int
	Message        string
	Details        string
	BridgeStatus   int
	BridgeResponse any
}

func (e *BridgeError) Error() string {
	return e.Message
}

// Payload returns the JSON error body.
func (e *BridgeError) Payload() map[string]any {
	p := map[string]any{"error": e.Message, "ok": false}
	if e.Details != "" {
		p["details"] = e.Details
	}
	if e.BridgeStatus != 0 {
		p["bridgeStatus"] = e.BridgeStatus
		p["bridgeResponse"] = e.BridgeResponse
	}
	return p
}

// ModeStatus is one entry of the status report.
type ModeStatus struct {
	Mode       string `json:"mode"`
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
}

// StatusReport is the body of the status route.
type StatusReport struct {
	AuthType   string       `json:"authType"`
	BearerRole *string      `json:"bearerRole"`
	Enabled    bool         `json:"enabled"`
	Modes      []ModeStatus `json:"modes"`
	OK         bool         `json:"ok"`
}

// ToolCall is a normalized tool-call request.
type ToolCall struct {
	Mode      string         `json:"-"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Options configures a Service.
type Options struct {
	Enabled        bool
	Endpoints      map[string]string
	RequestTimeout time.Duration
	StatusTimeout  time.Duration
}

// Service talks to the per-mode bridges.
type Service struct {
	opts    Options
	clients map[string]*upstream.Client
	bases   map[string]string
}

// NewService creates a service. Endpoints that fail to parse are skipped with a warning.
func NewService(opts Options, clientOpts ...upstream.ClientOption) *Service {
	s := &Service{
		opts:    opts,
		clients: make(map[string]*upstream.Client),
		bases:   make(map[string]string),
	}
	for mode, endpoint := range opts.Endpoints {
		key := NormalizeMode(mode)
		endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if key == "" || endpoint == "" {
			continue
		}
		c, err := upstream.NewClient(endpoint, clientOpts...)
		if err != nil {
			log.Warn().Err(err).Str("mode", key).Msg("mcp: ignoring bridge endpoint")
			continue
		}
		s.clients[key] = c
		s.bases[key] = endpoint
	}
	return s
}

// Configured reports whether mode has a bridge endpoint.
func (s *Service) Configured(mode string) bool {
	_, ok := s.clients[NormalizeMode(mode)]
	return ok
}

// call performs one bridge request. payload nil means GET.
func (s *Service) call(ctx context.Context, mode, path string, payload any, timeout time.Duration) (json.RawMessage, error) {
	key := NormalizeMode(mode)
	client, ok := s.clients[key]
	if !ok {
		name := key
		if name == "" {
			name = mode
		}
		if name == "" {
			name = "unknown"
		}
		return nil, &BridgeError{
			Status:  http.StatusInternalServerError,
			Message: fmt.Sprintf("MCP endpoint for mode %q is not configured.", name),
		}
	}

	req := upstream.Request{
		Method:  http.MethodGet,
		URL:     s.bases[key] + path,
		Header:  http.Header{},
		Timeout: timeout,
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		body, err := utils.MarshalNoEscape(payload)
		if err != nil {
			return nil, fmt.Errorf("encode bridge payload: %w", err)
		}
		req.Method = http.MethodPost
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, &BridgeError{
			Status:  http.StatusBadGateway,
			Message: fmt.Sprintf("MCP bridge %q is unreachable.", key),
			Details: err.Error(),
		}
	}

	parsed := parseBridgeBody(resp.Body)
	if !resp.OK() {
		status := resp.StatusCode
		if status == http.StatusNotFound {
			status = http.StatusBadGateway
		}
		var excerpt any = parsed
		if parsed == nil {
			excerpt = truncate(string(resp.Body), maxBridgeExcerpt)
		}
		return nil, &BridgeError{
			Status:         status,
			Message:        fmt.Sprintf("MCP bridge request failed for mode %q.", key),
			BridgeStatus:   resp.StatusCode,
			BridgeResponse: excerpt,
		}
	}
	if parsed == nil {
		wrapped, err := utils.MarshalNoEscape(map[string]any{"ok": true, "result": string(resp.Body)})
		if err != nil {
			return nil, err
		}
		return wrapped, nil
	}
	return parsed, nil
}

// parseBridgeBody returns body when it is non-null JSON, else nil.
func parseBridgeBody(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) || gjson.ParseBytes(trimmed).Type == gjson.Null {
		return nil
	}
	return json.RawMessage(trimmed)
}

// ResultOf returns payload.result when present and non-null, else payload.
func ResultOf(payload json.RawMessage) json.RawMessage {
	if r := gjson.GetBytes(payload, "result"); r.Exists() && r.Type != gjson.Null {
		return json.RawMessage(r.Raw)
	}
	return payload
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Status probes every mode's bridge health endpoint in parallel.
func (s *Service) Status(ctx context.Context, access *Access) StatusReport {
	statuses := make([]ModeStatus, len(Modes))
	var g errgroup.Group
	for i, mode := range Modes {
		i, mode := i, mode
		g.Go(func() error {
			statuses[i] = s.probe(ctx, mode)
			return nil
		})
	}
	_ = g.Wait()

	report := StatusReport{
		AuthType: "unknown",
		Enabled:  s.opts.Enabled,
		Modes:    statuses,
		OK:       true,
	}
	if access != nil {
		if access.AuthType != "" {
			report.AuthType = access.AuthType
		}
		if access.BearerRole != "" {
			role := access.BearerRole
			report.BearerRole = &role
		}
	}
	return report
}

func (s *Service) probe(ctx context.Context, mode string) ModeStatus {
	if !s.Configured(mode) {
		return ModeStatus{Mode: mode}
	}
	payload, err := s.call(ctx, mode, healthPath, nil, s.opts.StatusTimeout)
	if err != nil {
		msg := "Bridge probe failed."
		var be *BridgeError
		if errors.As(err, &be) && be.Message != "" {
			msg = be.Message
		}
		return ModeStatus{Mode: mode, Configured: true, Error: msg}
	}
	return ModeStatus{Mode: mode, Configured: true, Healthy: truthy(gjson.GetBytes(payload, "ok"))}
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.JSON:
		return true
	}
	return false
}

// Tools lists the tools of mode's bridge.
func (s *Service) Tools(ctx context.Context, mode string) (json.RawMessage, error) {
	payload, err := s.call(ctx, mode, toolsPath, nil, s.opts.StatusTimeout)
	if err != nil {
		return nil, err
	}
	return ResultOf(payload), nil
}

// Call forwards a tool call to the bridge. It is never retried.
func (s *Service) Call(ctx context.Context, tc ToolCall) (json.RawMessage, error) {
	args := tc.Arguments
	if args == nil {
		args = map[string]any{}
	}
	payload, err := s.call(ctx, tc.Mode, callPath, ToolCall{Name: tc.Name, Arguments: args}, s.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	log.Info().Str("mode", tc.Mode).Str("tool", tc.Name).Msg("mcp: tool call forwarded")
	return ResultOf(payload), nil
}

// ParseToolCall normalizes a call body. Mode and tool from the path win over
// the body; when arguments is not an object the remaining body fields are used.
func ParseToolCall(body []byte, modeFromPath, toolFromPath string) (ToolCall, error) {
	obj := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		var v any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return ToolCall{}, fmt.Errorf("%w: Invalid JSON body.", ErrBadRequest)
		}
		if m, ok := v.(map[string]any); ok {
			obj = m
		}
	}

	modeRaw := modeFromPath
	if modeRaw == "" {
		modeRaw, _ = obj["mode"].(string)
	}
	mode := NormalizeMode(modeRaw)
	if mode == "" {
		return ToolCall{}, fmt.Errorf("%w: Missing or invalid mode.", ErrBadRequest)
	}

	name := toolFromPath
	if name == "" {
		name = stringify(obj["name"])
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ToolCall{}, fmt.Errorf("%w: Missing tool name.", ErrBadRequest)
	}

	if args, ok := obj["arguments"].(map[string]any); ok {
		return ToolCall{Mode: mode, Name: name, Arguments: args}, nil
	}
	args := make(map[string]any, len(obj))
	for k, v := range obj {
		if k != "mode" && k != "name" {
			args[k] = v
		}
	}
	return ToolCall{Mode: mode, Name: name, Arguments: args}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return ""
	}
	return ""
}

// BadRequestMessage strips the sentinel prefix from a ParseToolCall error.
func BadRequestMessage(err error) string {
	return strings.TrimSpace(strings.TrimPrefix(err.Error(), ErrBadRequest.Error()+":"))
}
