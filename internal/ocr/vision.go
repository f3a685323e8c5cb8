// Package ocr - vision.go asks the vision model for the text in one image.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/legalchat/auth-gateway/internal/upstream"
	"github.com/legalchat/auth-gateway/internal/utils"
)

// DefaultPrompt instructs the vision model to act as a plain OCR engine.
const DefaultPrompt = "You are an OCR engine. Extract all readable text from this JPEG image in the original language. Return only extracted text. If unreadable, return NO_TEXT."

// NoTextMarker is what the model answers for images without readable text.
const NoTextMarker = "NO_TEXT"

// ErrVision is returned for failed or erroneous model calls.
var ErrVision = errors.New("ocr: vision model request failed")

// =============================================================================
// Request types
// =============================================================================

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// =============================================================================
// Client
// =============================================================================

// VisionClient calls an OpenAI-compatible chat completions endpoint.
type VisionClient struct {
	client   *upstream.Client
	endpoint string
	apiKey   string
	model    string
	prompt   string
	timeout  time.Duration
}

// NewVisionClient creates a client for baseURL (e.g. https://openrouter.ai/api/v1).
func NewVisionClient(baseURL, apiKey, model string, timeout time.Duration, opts ...upstream.ClientOption) (*VisionClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	client, err := upstream.NewClient(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionClient{
		client:   client,
		endpoint: baseURL + "/chat/completions",
		apiKey:   apiKey,
		model:    model,
		prompt:   DefaultPrompt,
		timeout:  timeout,
	}, nil
}

// Model returns the configured model id.
func (v *VisionClient) Model() string {
	return v.model
}

// SetPrompt replaces the default OCR prompt. Empty prompts are ignored.
func (v *VisionClient) SetPrompt(prompt string) {
	if prompt = strings.TrimSpace(prompt); prompt != "" {
		v.prompt = prompt
	}
}

// Extract runs OCR on img and returns the raw model text.
func (v *VisionClient) Extract(ctx context.Context, img *Image) (string, error) {
	payload, err := utils.MarshalNoEscape(chatRequest{
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: v.prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: img.DataURL()}},
			},
		}},
		Model:       v.model,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("encode vision request: %w", err)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+v.apiKey)
	h.Set("Content-Type", "application/json")
	resp, err := v.client.Do(ctx, upstream.Request{
		Method:  http.MethodPost,
		URL:     v.endpoint,
		Header:  h,
		Body:    payload,
		Timeout: v.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVision, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w (%d): %s", ErrVision, resp.StatusCode, truncate(string(resp.Body), 300))
	}
	if !gjson.ValidBytes(resp.Body) {
		return "", fmt.Errorf("%w: invalid json response", ErrVision)
	}
	if e := gjson.GetBytes(resp.Body, "error"); truthy(e) {
		return "", fmt.Errorf("%w: model error: %s", ErrVision, e.Raw)
	}
	return assistantText(gjson.GetBytes(resp.Body, "choices.0.message.content")), nil
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	}
	return v.Exists()
}

// assistantText flattens string or content-part message content.
func assistantText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}
	if !content.IsArray() {
		return ""
	}
	var parts []string
	for _, part := range content.Array() {
		switch {
		case part.Type == gjson.String:
			parts = append(parts, part.Str)
		case part.Get("text").Type == gjson.String:
			parts = append(parts, part.Get("text").Str)
		default:
			parts = append(parts, "")
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// NormalizeText trims model output, maps NO_TEXT to "" and caps the length in runes.
func NormalizeText(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, NoTextMarker) {
		return ""
	}
	return truncate(text, maxChars)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
