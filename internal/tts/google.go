// Package tts - google.go calls the translate_tts endpoint once per chunk and
// concatenates the audio.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/legalchat/auth-gateway/internal/upstream"
)

const (
	googleAccept    = "audio/mpeg,*/*"
	googleUserAgent = "Mozilla/5.0 (compatible; LegalChatTTS/1.0)"
	googlePath      = "/translate_tts"
)

// ErrNoAudio is returned when the tertiary backend yields no usable audio.
var ErrNoAudio = errors.New("tts: google returned no audio")

// GoogleClient synthesizes speech one chunk at a time.
type GoogleClient struct {
	client   *upstream.Client
	name     string
	maxChars int
}

// NewGoogleClient creates a client for host (e.g. translate.google.com). A host
// that already carries a scheme is used as is.
func NewGoogleClient(host, clientName string, maxChars int, opts ...upstream.ClientOption) (*GoogleClient, error) {
	base := host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	c, err := upstream.NewClient(base, opts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	return &GoogleClient{client: c, name: clientName, maxChars: maxChars}, nil
}

// GoogleLocale maps a payload locale to the tl parameter.
func GoogleLocale(locale string) string {
	if locale == "" {
		return "en"
	}
	return strings.ReplaceAll(locale, "_", "-")
}

// Synthesize returns the concatenated MP3 of every chunk of text, in order.
// Any failing chunk fails the whole call.
func (g *GoogleClient) Synthesize(ctx context.Context, locale, text string) ([]byte, error) {
	chunks := SplitText(text, g.maxChars)
	if len(chunks) == 0 {
		return nil, ErrNoAudio
	}
	var audio []byte
	for i, chunk := range chunks {
		part, err := g.chunk(ctx, locale, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio = append(audio, part...)
	}
	return audio, nil
}

func (g *GoogleClient) chunk(ctx context.Context, locale, text string) ([]byte, error) {
	params := url.Values{}
	params.Set("client", g.name)
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", GoogleLocale(locale))

	h := http.Header{}
	h.Set("Accept", googleAccept)
	h.Set("User-Agent", googleUserAgent)
	resp, err := g.client.Do(ctx, upstream.Request{
		Method: http.MethodGet,
		URL:    googlePath + "?" + params.Encode(),
		Header: h,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: status %d", ErrNoAudio, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, ErrNoAudio
	}
	return resp.Body, nil
}
