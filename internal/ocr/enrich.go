// Package ocr - enrich.go splices OCR text from JPEG attachments into chat messages.
//
// DESIGN: Per send-message request:
//
//	received -> parsed JSON -> messages found -> per attachment {
//	    resolve candidates -> download -> verify JPEG -> vision model
//	} -> splice block -> forward
//
// Attachments and candidates are processed strictly in order, one at a time,
// so the vision model is called at most once per attachment. A failing
// attachment is logged and skipped; when nothing succeeds the original body is
// forwarded byte for byte. Messages that already carry the marker are left
// alone so retried requests are not enriched twice.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/legalchat/auth-gateway/internal/filecache"
	"github.com/legalchat/auth-gateway/internal/upstream"
	"github.com/legalchat/auth-gateway/internal/utils"
)

// Marker delimits injected OCR blocks.
const Marker = "LEGALCHAT_AUTO_OCR_V1"

// Bypass reasons reported in Outcome.Reason.
const (
	ReasonOK            = "ok"
	ReasonDisabled      = "disabled"
	ReasonMissingAPIKey = "missing_api_key"
	ReasonEmpty         = "empty"
	ReasonNotJSON       = "not_json"
	ReasonNoSendPayload = "no_send_payload"
	ReasonNoText        = "no_jpeg_or_no_text"
)

const fileItemPath = "/trpc/lambda/file.getFileItemById"

// Result is the OCR text extracted from one attachment.
type Result struct {
	FileID string
	Text   string
}

// Outcome describes what Enrich did with a body.
type Outcome struct {
	Body     []byte
	Injected bool
	Items    int
	Reason   string
}

// Extractor runs OCR on one image.
type Extractor interface {
	Extract(ctx context.Context, img *Image) (string, error)
	Model() string
}

// Options configures an Enricher.
type Options struct {
	Enabled      bool
	APIKeySet    bool
	MaxImages    int
	MaxTextChars int
}

// Enricher runs the OCR pipeline.
type Enricher struct {
	app        *upstream.Client
	cache      *filecache.Cache
	resolver   *Resolver
	downloader *Downloader
	vision     Extractor
	opts       Options
	lookups    singleflight.Group
}

// NewEnricher wires the pipeline. app is the chat app client used for file lookups.
func NewEnricher(app *upstream.Client, cache *filecache.Cache, resolver *Resolver, downloader *Downloader, vision Extractor, opts Options) *Enricher {
	if opts.MaxImages <= 0 {
		opts.MaxImages = 1
	}
	return &Enricher{
		app:        app,
		cache:      cache,
		resolver:   resolver,
		downloader: downloader,
		vision:     vision,
		opts:       opts,
	}
}

// Enrich returns body with OCR blocks appended to every eligible user message.
// header carries the caller's cookies for the file lookup; it may be nil.
func (e *Enricher) Enrich(ctx context.Context, body []byte, header http.Header) Outcome {
	switch {
	case !e.opts.Enabled:
		return Outcome{Body: body, Reason: ReasonDisabled}
	case !e.opts.APIKeySet || e.vision == nil:
		return Outcome{Body: body, Reason: ReasonMissingAPIKey}
	case len(body) == 0:
		return Outcome{Body: body, Reason: ReasonEmpty}
	case !json.Valid(body):
		return Outcome{Body: body, Reason: ReasonNotJSON}
	}

	var root any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return Outcome{Body: body, Reason: ReasonNotJSON}
	}

	messages := findSendMessages(root)
	if len(messages) == 0 {
		return Outcome{Body: body, Reason: ReasonNoSendPayload}
	}

	total := 0
	for _, message := range messages {
		content, _ := message["content"].(string)
		if strings.Contains(content, "["+Marker+"]") {
			continue
		}
		ids := messageFileIDs(message)
		if len(ids) == 0 {
			continue
		}
		if len(ids) > e.opts.MaxImages {
			ids = ids[:e.opts.MaxImages]
		}

		var results []Result
		for _, id := range ids {
			if r, ok := e.ocrFile(ctx, id, header); ok {
				results = append(results, r)
			}
		}
		if len(results) == 0 {
			continue
		}
		message["content"] = content + "\n\n" + BuildBlock(results, e.vision.Model())
		total += len(results)
	}

	if total == 0 {
		return Outcome{Body: body, Reason: ReasonNoText}
	}
	out, err := utils.MarshalNoEscape(root)
	if err != nil {
		log.Warn().Err(err).Msg("ocr: re-encode failed, forwarding original body")
		return Outcome{Body: body, Reason: ReasonNoText}
	}
	return Outcome{Body: out, Injected: true, Items: total, Reason: ReasonOK}
}

// ocrFile downloads one attachment and runs the vision model on it.
func (e *Enricher) ocrFile(ctx context.Context, fileID string, header http.Header) (Result, bool) {
	img := e.download(ctx, fileID, header)
	if img == nil {
		log.Warn().Str("file_id", fileID).Msg("ocr: no jpeg candidate succeeded")
		return Result{}, false
	}
	raw, err := e.vision.Extract(ctx, img)
	if err != nil {
		log.Warn().Err(err).Str("file_id", fileID).Str("source", img.Source).Msg("ocr: vision call failed")
		return Result{}, false
	}
	text := NormalizeText(raw, e.opts.MaxTextChars)
	if text == "" {
		log.Debug().Str("file_id", fileID).Msg("ocr: no text in image")
		return Result{}, false
	}
	return Result{FileID: fileID, Text: text}, true
}

// download tries every candidate in order and returns the first valid JPEG.
func (e *Enricher) download(ctx context.Context, fileID string, header http.Header) *Image {
	if _, ok := e.cache.Get(fileID); !ok && header != nil {
		e.discover(ctx, fileID, header)
	}

	var img *Image
	e.resolver.Each(ctx, fileID, func(c Candidate) bool {
		got, err := e.downloader.Fetch(ctx, fileID, c)
		if err != nil {
			ev := log.Debug()
			if !isRejection(err) {
				ev = log.Warn()
			}
			ev.Err(err).Str("file_id", fileID).Str("source", c.Source).Msg("ocr: download candidate failed")
			return false
		}
		img = got
		return true
	})
	return img
}

func isRejection(err error) bool {
	return errors.Is(err, ErrNotJPEG) || errors.Is(err, ErrBadStatus) ||
		errors.Is(err, ErrEmptyImage) || errors.Is(err, ErrImageTooLarge)
}

// =============================================================================
// FILE LOOKUP
// =============================================================================

// discover asks the app where an uncached file lives and caches the answer.
// Concurrent lookups for the same file and caller are coalesced.
func (e *Enricher) discover(ctx context.Context, fileID string, header http.Header) {
	cookie := header.Get("Cookie")
	authorization := header.Get("Authorization")
	if cookie == "" && authorization == "" {
		return
	}
	key := fileID + "\x00" + cookie + "\x00" + authorization
	v, err, _ := e.lookups.Do(key, func() (any, error) {
		return e.lookupFileItem(ctx, fileID, cookie, authorization)
	})
	if err != nil {
		log.Warn().Err(err).Str("file_id", fileID).Msg("ocr: file item lookup failed")
		return
	}
	item, ok := v.(FileItem)
	if !ok || item.URL == "" {
		return
	}
	entry := filecache.Entry{FileType: item.FileType, ResponseURL: item.URL}
	if IsLikelyStorageURL(item.URL) {
		entry.StorageURL = item.URL
	}
	e.cache.Put(fileID, entry)
}

func (e *Enricher) lookupFileItem(ctx context.Context, fileID, cookie, authorization string) (FileItem, error) {
	input, err := json.Marshal(map[string]any{"0": map[string]string{"id": fileID}})
	if err != nil {
		return FileItem{}, err
	}
	h := http.Header{}
	h.Set("Accept", "application/json")
	if cookie != "" {
		h.Set("Cookie", cookie)
	}
	if authorization != "" {
		h.Set("Authorization", authorization)
	}
	resp, err := e.app.Do(ctx, upstream.Request{
		Method: http.MethodGet,
		URL:    fileItemPath + "?batch=1&input=" + url.QueryEscape(string(input)),
		Header: h,
	})
	if err != nil {
		return FileItem{}, err
	}
	if !resp.OK() {
		return FileItem{}, fmt.Errorf("file lookup status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(resp.Body) {
		return FileItem{}, errors.New("file lookup returned invalid json")
	}
	item, _ := findFileItem(gjson.ParseBytes(resp.Body), fileID)
	return item, nil
}

// =============================================================================
// FILE CREATE
// =============================================================================

// RememberFileCreate pairs file.createFile inputs with outputs by position and
// caches each created file. A single input pairs with every output. Returns
// the number of entries stored.
func RememberFileCreate(cache *filecache.Cache, requestBody, responseBody []byte) int {
	if len(requestBody) == 0 || len(responseBody) == 0 ||
		!gjson.ValidBytes(requestBody) || !gjson.ValidBytes(responseBody) {
		return 0
	}
	inputs := fileCreateInputs(gjson.ParseBytes(requestBody))
	outputs := fileCreateOutputs(gjson.ParseBytes(responseBody))

	stored := 0
	for i, out := range outputs {
		if out.fileID == "" {
			continue
		}
		var in createInput
		switch {
		case i < len(inputs):
			in = inputs[i]
		case len(inputs) == 1:
			in = inputs[0]
		}
		cache.Put(out.fileID, filecache.Entry{
			FileType:    in.fileType,
			StorageURL:  in.storageURL,
			ResponseURL: out.url,
		})
		stored++
	}
	return stored
}

// =============================================================================
// INJECTION
// =============================================================================

// BuildBlock renders OCR results as the marker-delimited block appended to a message.
func BuildBlock(results []Result, model string) string {
	sections := make([]string, 0, len(results))
	for i, r := range results {
		sections = append(sections, fmt.Sprintf("[JPEG %d | %s]\n%s", i+1, r.FileID, r.Text))
	}
	return "[" + Marker + "]\n" +
		"Automatisch extrahierter OCR-Text (" + model + ") aus JPEG-Anhaengen:\n\n" +
		strings.Join(sections, "\n\n---\n\n") + "\n" +
		"[/" + Marker + "]"
}
