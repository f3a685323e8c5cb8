// Package upstream - client.go issues buffered HTTP requests to upstream services.
//
// DESIGN: Every lane that has to look at or rewrite an upstream body goes
// through Client.Do, which reads the whole response into memory:
//   - redirects are NOT followed by default (Location is relayed and rewritten)
//   - FollowRedirects is used for object downloads (presigned/CDN URLs)
//   - each call gets its own timeout via context, falling back to the client default
//   - MaxBytes bounds the buffered body (ErrBodyTooLarge above it)
//
// The generic pass-through lane streams instead (see proxy.go).
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrBodyTooLarge is returned when a response body exceeds Request.MaxBytes.
var ErrBodyTooLarge = errors.New("upstream: response body exceeds limit")

// DefaultTimeout applies when neither the client nor the request sets one.
const DefaultTimeout = 60 * time.Second

// Response is a fully buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Request describes one upstream call.
type Request struct {
	Method string
	// URL is either a path (resolved against the client's base URL) or an absolute URL.
	URL             string
	Header          http.Header
	Body            []byte
	Timeout         time.Duration
	FollowRedirects bool
	MaxBytes        int64
}

// Client talks to one upstream base URL.
type Client struct {
	baseURL *url.URL
	direct  *http.Client
	follow  *http.Client
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport is shared by the
// redirect-following and non-following variants.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.follow = hc
		c.direct = &http.Client{
			Transport:     hc.Transport,
			Jar:           hc.Jar,
			CheckRedirect: noRedirect,
		}
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// NewClient creates a client for baseURL (e.g. http://lobe-chat-glass:3210).
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL: u,
		direct:  &http.Client{CheckRedirect: noRedirect},
		follow:  &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns a copy of the upstream base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Resolve turns a path or absolute URL into an absolute URL against the base.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// Do performs the request and buffers the response body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := c.Resolve(req.URL)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", req.URL, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}
	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}
	httpReq.Header.Del("Content-Length")
	httpReq.Header.Del("Transfer-Encoding")

	hc := c.direct
	if req.FollowRedirects {
		hc = c.follow
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, redact(target), err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if req.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, req.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", redact(target), err)
	}
	if req.MaxBytes > 0 && int64(len(data)) > req.MaxBytes {
		return nil, ErrBodyTooLarge
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// redact drops the query string, which carries presign signatures.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

// =============================================================================
// RESPONSE WRITING
// =============================================================================

// hopHeaders are connection-scoped and never relayed.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Trailer",
	"Content-Length",
}

// CopyHeaders copies HTTP headers from src to w, skipping hop-by-hop headers.
func CopyHeaders(w http.ResponseWriter, src http.Header) {
	for k, v := range src {
		w.Header()[k] = append([]string(nil), v...)
	}
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}
}

// Write relays a buffered response with a recalculated Content-Length.
func Write(w http.ResponseWriter, resp *Response) {
	CopyHeaders(w, resp.Header)
	w.Header().Set("Content-Length", fmt.Sprint(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
