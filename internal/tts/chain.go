// Package tts keeps speech synthesis working when the primary backend fails.
//
// DESIGN: A strictly sequential fallback chain over buffered responses:
//
//	primary (original payload) -> edge (voice remapped) -> google (chunked)
//
// The first 2xx response wins and is marked with x-legalchat-tts-fallback
// (absent for primary). When every stage fails the primary response is relayed
// unchanged, so callers see the real upstream error.
package tts

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/legalchat/auth-gateway/internal/upstream"
)

// Paths and headers of the speech lane.
const (
	OpenAIPath     = "/webapi/tts/openai"
	EdgePath       = "/webapi/tts/edge"
	FallbackHeader = "X-Legalchat-Tts-Fallback"
)

// Fallback stage names as reported in FallbackHeader.
const (
	StageEdge   = "edge"
	StageGoogle = "google"
)

// Options configures a Chain.
type Options struct {
	EdgeEnabled      bool
	GoogleEnabled    bool
	DefaultEdgeVoice string
}

// Chain runs the fallback chain.
type Chain struct {
	app      *upstream.Client
	rewriter *upstream.LocationRewriter
	google   *GoogleClient
	opts     Options
}

// NewChain creates a chain over the chat app client. google may be nil.
func NewChain(app *upstream.Client, rewriter *upstream.LocationRewriter, google *GoogleClient, opts Options) *Chain {
	return &Chain{app: app, rewriter: rewriter, google: google, opts: opts}
}

// Synthesize runs r (a POST to the OpenAI speech path, body already read)
// through the chain and returns the response to relay. An error means the
// primary call itself could not be made.
func (c *Chain) Synthesize(ctx context.Context, r *http.Request, body []byte) (*upstream.Response, error) {
	primary, err := c.app.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    upstream.URI(r),
		Header: upstream.ForwardHeaders(r),
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("tts primary: %w", err)
	}
	log.Debug().Int("status", primary.StatusCode).Msg("tts: primary")
	if primary.OK() {
		return c.relay(primary, r), nil
	}

	if c.opts.EdgeEnabled {
		if resp := c.edge(ctx, r, body); resp != nil {
			return resp, nil
		}
	}

	if c.opts.GoogleEnabled && c.google != nil {
		if resp := c.googleFallback(ctx, body); resp != nil {
			return resp, nil
		}
	}

	log.Warn().Int("status", primary.StatusCode).Msg("tts: all backends failed, relaying primary response")
	return c.relay(primary, r), nil
}

func (c *Chain) relay(resp *upstream.Response, r *http.Request) *upstream.Response {
	if c.rewriter != nil {
		c.rewriter.RewriteHeader(resp.Header, r)
	}
	return resp
}

func (c *Chain) edge(ctx context.Context, r *http.Request, body []byte) *upstream.Response {
	payload := EdgePayload(body, c.opts.DefaultEdgeVoice)
	resp, err := c.app.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    strings.Replace(upstream.URI(r), OpenAIPath, EdgePath, 1),
		Header: upstream.ForwardHeaders(r),
		Body:   payload,
	})
	if err != nil {
		log.Warn().Err(err).Msg("tts: edge fallback failed")
		return nil
	}
	log.Debug().Int("status", resp.StatusCode).Msg("tts: edge fallback")
	if !resp.OK() {
		return nil
	}
	resp.Header.Set(FallbackHeader, StageEdge)
	log.Info().Msg("tts: fallback active: openai -> edge")
	return resp
}

func (c *Chain) googleFallback(ctx context.Context, body []byte) *upstream.Response {
	input, locale, ok := payloadInput(body)
	if !ok {
		return nil
	}
	audio, err := c.google.Synthesize(ctx, locale, input)
	if err != nil {
		log.Warn().Err(err).Msg("tts: google fallback failed")
		return nil
	}
	h := http.Header{}
	h.Set("Cache-Control", "no-store")
	h.Set("Content-Type", "audio/mpeg")
	h.Set(FallbackHeader, StageGoogle)
	log.Info().Int("bytes", len(audio)).Msg("tts: fallback active: openai -> google")
	return &upstream.Response{StatusCode: http.StatusOK, Header: h, Body: audio}
}
