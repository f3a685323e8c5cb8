// Package ocr - download.go fetches a candidate and accepts only bounded JPEG bodies.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/legalchat/auth-gateway/internal/upstream"
)

// Download errors. Any of them just means "try the next candidate".
var (
	ErrNotJPEG       = errors.New("ocr: not a jpeg")
	ErrEmptyImage    = errors.New("ocr: empty image")
	ErrBadStatus     = errors.New("ocr: download failed")
	ErrImageTooLarge = upstream.ErrBodyTooLarge
)

const imageAccept = "image/jpeg,image/jpg,image/*;q=0.8,*/*;q=0.2"

// Image is a downloaded JPEG ready for the vision model.
type Image struct {
	FileID   string
	Source   string
	MimeType string
	Data     []byte
}

// DataURL encodes the image for an image_url content part.
func (img *Image) DataURL() string {
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

var (
	jpegMimePattern = regexp.MustCompile(`(?i)image/(?:jpeg|jpg)`)
	jpegPathPattern = regexp.MustCompile(`(?i)\.jpe?g(?:$|\?)`)
	jpegMagic       = []byte{0xFF, 0xD8, 0xFF}
)

// IsJPEG accepts data as a JPEG if any of content type, magic bytes or URL suffix say so.
func IsJPEG(contentType string, data []byte, rawURL string) bool {
	return jpegMimePattern.MatchString(contentType) ||
		len(data) > 3 && bytes.HasPrefix(data, jpegMagic) ||
		jpegPathPattern.MatchString(rawURL)
}

// Downloader fetches candidate URLs and validates them.
type Downloader struct {
	client   *upstream.Client
	maxBytes int64
	timeout  time.Duration
}

// NewDownloader creates a downloader. Relative candidate URLs resolve against client's base.
func NewDownloader(client *upstream.Client, maxBytes int64, timeout time.Duration) *Downloader {
	return &Downloader{client: client, maxBytes: maxBytes, timeout: timeout}
}

// Fetch downloads one candidate. The response must be 2xx, non-empty, within the
// size cap and recognizable as JPEG. No cookies are sent.
func (d *Downloader) Fetch(ctx context.Context, fileID string, c Candidate) (*Image, error) {
	h := http.Header{}
	h.Set("Accept", imageAccept)
	resp, err := d.client.Do(ctx, upstream.Request{
		Method:          http.MethodGet,
		URL:             c.URL,
		Header:          h,
		Timeout:         d.timeout,
		FollowRedirects: true,
		MaxBytes:        d.maxBytes,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: status %d", ErrBadStatus, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, ErrEmptyImage
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if !IsJPEG(contentType, resp.Body, c.URL) {
		return nil, ErrNotJPEG
	}

	mimeType := "image/jpeg"
	if jpegMimePattern.MatchString(contentType) {
		mimeType = contentType
	}
	return &Image{FileID: fileID, Source: c.Source, MimeType: mimeType, Data: resp.Body}, nil
}
