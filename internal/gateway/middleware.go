// Package gateway - middleware.go tags, times and records every request.
//
// DESIGN: instrument() runs after mux picked a route, so it knows the lane:
//   - request ID: propagated from X-Request-ID or a new UUID, echoed back
//   - logger:     a zerolog child logger with request_id in the context
//   - recording:  status, bytes and latency go to metrics and telemetry
//
// Lanes add a short detail (OCR reason, TTS stage, MCP tool) via setDetail.
package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/legalchat/auth-gateway/internal/monitoring"
)

// statusRecorder captures the status code and body size written by a lane.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach Flush and Hijack on the real writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Flush streams proxied responses as they arrive.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type detailKey struct{}

// setDetail attaches a short note to the request's telemetry event.
func setDetail(r *http.Request, detail string) {
	if p, ok := r.Context().Value(detailKey{}).(*string); ok {
		*p = detail
	}
}

func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lane := laneOf(mux.CurrentRoute(r))
		requestID := g.getRequestID(r)

		var detail string
		ctx := monitoring.ContextWithRequestID(r.Context(), requestID)
		ctx = context.WithValue(ctx, detailKey{}, &detail)
		r = r.WithContext(ctx)

		w.Header().Set(HeaderRequestID, requestID)
		rec := &statusRecorder{ResponseWriter: w}
		monitoring.Ctx(ctx).Debug().
			Str("lane", string(lane)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request")

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		g.metrics.RecordRequest(lane, status, elapsed)
		if lane == monitoring.LaneOps || lane == monitoring.LaneHealth {
			return
		}
		g.tracker.RecordRequest(&monitoring.RequestEvent{
			RequestID:      requestID,
			Timestamp:      start,
			Method:         r.Method,
			Path:           r.URL.Path,
			Host:           r.Host,
			ClientIP:       clientIP(r),
			Lane:           lane,
			StatusCode:     status,
			ResponseBytes:  rec.bytes,
			TotalLatencyMs: elapsed.Milliseconds(),
			Success:        status < http.StatusInternalServerError,
			Detail:         detail,
		})
	})
}

// getRequestID gets or generates a request ID.
func (g *Gateway) getRequestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" && len(id) <= 128 {
		return id
	}
	if id := monitoring.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return uuid.New().String()
}

// clientIP prefers the first X-Forwarded-For hop set by the edge proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLoopback reports whether addr (host:port) is a loopback address.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func fromLoopback(r *http.Request) bool {
	return isLoopback(r.RemoteAddr)
}
