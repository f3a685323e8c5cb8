package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/legalchat/auth-gateway/internal/filecache"
	"github.com/legalchat/auth-gateway/internal/upstream"
)

type fakeVision struct {
	mu    sync.Mutex
	calls []string
	reply map[string]string
	err   error
}

func (f *fakeVision) Extract(_ context.Context, img *Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, img.FileID)
	if f.err != nil {
		return "", f.err
	}
	return f.reply[img.FileID], nil
}

func (f *fakeVision) Model() string { return "test/vision" }

type fakeApp struct {
	*httptest.Server
	mu      sync.Mutex
	lookups int
	cookies []string
}

// newFakeApp serves /f/<id> for jpeg ids and answers file lookups for file_lookup.
func newFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	app := &fakeApp{}
	mux := http.NewServeMux()
	mux.HandleFunc("/f/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/f/")
		switch id {
		case "file_jpg", "file_blank", "file_2":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(jpegBytes)
		case "file_png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/storage/lookup.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegBytes)
	})
	mux.HandleFunc(fileItemPath, func(w http.ResponseWriter, r *http.Request) {
		app.mu.Lock()
		app.lookups++
		app.cookies = append(app.cookies, r.Header.Get("Cookie"))
		app.mu.Unlock()
		assert.Equal(t, "1", r.URL.Query().Get("batch"))
		assert.Equal(t, `{"0":{"id":"file_lookup"}}`, r.URL.Query().Get("input"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"result":{"data":{"json":{"id":"file_lookup","fileType":"image/jpeg","url":"/storage/lookup.jpg"}}}}]`))
	})
	app.Server = httptest.NewServer(mux)
	return app
}

func newTestEnricher(t *testing.T, vision Extractor, opts Options) (*Enricher, *fakeApp, *filecache.Cache) {
	t.Helper()
	app := newFakeApp(t)
	t.Cleanup(app.Close)

	client, err := upstream.NewClient(app.URL)
	require.NoError(t, err)
	cache := newCache(t)
	resolver := NewResolver(app.URL, cache, nil, "lobe", "")
	downloader := NewDownloader(client, 1<<20, 5*time.Second)
	return NewEnricher(client, cache, resolver, downloader, vision, opts), app, cache
}

func enabled() Options {
	return Options{Enabled: true, APIKeySet: true, MaxImages: 4, MaxTextChars: 1000}
}

func sendBody(content string, files ...string) []byte {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = `"` + f + `"`
	}
	return []byte(`{"0":{"json":{"newUserMessage":{"content":` + jsonString(content) +
		`,"files":[` + strings.Join(quoted, ",") + `]},"newAssistantMessage":{"model":"x"},"note":"<b>&</b>"}}}`)
}

func jsonString(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

func userContent(body []byte) string {
	return gjson.GetBytes(body, "0.json.newUserMessage.content").Str
}

func TestEnricher_BypassReasons(t *testing.T) {
	vision := &fakeVision{}
	tests := []struct {
		name string
		opts Options
		vis  Extractor
		body []byte
		want string
	}{
		{"disabled", Options{APIKeySet: true}, vision, sendBody("x", "file_jpg"), ReasonDisabled},
		{"no key", Options{Enabled: true}, vision, sendBody("x", "file_jpg"), ReasonMissingAPIKey},
		{"no vision", enabled(), nil, sendBody("x", "file_jpg"), ReasonMissingAPIKey},
		{"empty", enabled(), vision, nil, ReasonEmpty},
		{"not json", enabled(), vision, []byte(`{"0":`), ReasonNotJSON},
		{"no payload", enabled(), vision, []byte(`{"0":{"json":{"messages":[]}}}`), ReasonNoSendPayload},
		{"no files", enabled(), vision, sendBody("x"), ReasonNoText},
		{"png only", enabled(), vision, sendBody("x", "file_png"), ReasonNoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEnricher(t, tt.vis, tt.opts)
			out := e.Enrich(context.Background(), tt.body, nil)
			assert.Equal(t, tt.want, out.Reason)
			assert.False(t, out.Injected)
			assert.Equal(t, tt.body, out.Body)
		})
	}
	assert.Empty(t, vision.calls)
}

func TestEnricher_InjectsBlock(t *testing.T) {
	vision := &fakeVision{reply: map[string]string{"file_jpg": " Seite 1 ", "file_2": "Seite 2", "file_blank": "NO_TEXT"}}
	e, _, _ := newTestEnricher(t, vision, enabled())

	body := sendBody("Bitte lesen", "file_jpg", "file_png", "file_blank", "file_2")
	out := e.Enrich(context.Background(), body, nil)

	require.True(t, out.Injected)
	assert.Equal(t, ReasonOK, out.Reason)
	assert.Equal(t, 2, out.Items)
	assert.Equal(t, []string{"file_jpg", "file_blank", "file_2"}, vision.calls)

	want := "Bitte lesen\n\n[LEGALCHAT_AUTO_OCR_V1]\n" +
		"Automatisch extrahierter OCR-Text (test/vision) aus JPEG-Anhaengen:\n\n" +
		"[JPEG 1 | file_jpg]\nSeite 1\n\n---\n\n[JPEG 2 | file_2]\nSeite 2\n" +
		"[/LEGALCHAT_AUTO_OCR_V1]"
	assert.Equal(t, want, userContent(out.Body))

	// Unrelated fields survive without HTML escaping.
	assert.Contains(t, string(out.Body), `"note":"<b>&</b>"`)
	assert.Equal(t, "x", gjson.GetBytes(out.Body, "0.json.newAssistantMessage.model").Str)
}

func TestEnricher_Idempotent(t *testing.T) {
	vision := &fakeVision{reply: map[string]string{"file_jpg": "Text"}}
	e, _, _ := newTestEnricher(t, vision, enabled())

	first := e.Enrich(context.Background(), sendBody("Hallo", "file_jpg"), nil)
	require.True(t, first.Injected)

	second := e.Enrich(context.Background(), first.Body, nil)
	assert.False(t, second.Injected)
	assert.Equal(t, ReasonNoText, second.Reason)
	assert.Equal(t, first.Body, second.Body)
	assert.Len(t, vision.calls, 1)
}

func TestEnricher_MaxImages(t *testing.T) {
	vision := &fakeVision{reply: map[string]string{"file_jpg": "a", "file_2": "b"}}
	opts := enabled()
	opts.MaxImages = 1
	e, _, _ := newTestEnricher(t, vision, opts)

	out := e.Enrich(context.Background(), sendBody("x", "file_jpg", "file_2"), nil)
	assert.Equal(t, 1, out.Items)
	assert.Equal(t, []string{"file_jpg"}, vision.calls)
}

func TestEnricher_VisionFailureForwardsOriginal(t *testing.T) {
	vision := &fakeVision{err: errors.New("boom")}
	e, _, _ := newTestEnricher(t, vision, enabled())

	body := sendBody("x", "file_jpg")
	out := e.Enrich(context.Background(), body, nil)
	assert.False(t, out.Injected)
	assert.Equal(t, body, out.Body)
}

func TestEnricher_LookupDiscoversStorage(t *testing.T) {
	vision := &fakeVision{reply: map[string]string{"file_lookup": "gefunden"}}
	e, app, cache := newTestEnricher(t, vision, enabled())

	h := http.Header{}
	h.Set("Cookie", "__Secure-authjs.session-token=abc")
	out := e.Enrich(context.Background(), sendBody("x", "file_lookup"), h)

	require.True(t, out.Injected)
	assert.Equal(t, 1, app.lookups)
	assert.Equal(t, []string{"__Secure-authjs.session-token=abc"}, app.cookies)

	entry, ok := cache.Get("file_lookup")
	require.True(t, ok)
	assert.Equal(t, "/storage/lookup.jpg", entry.ResponseURL)
	assert.Equal(t, "image/jpeg", entry.FileType)
	assert.Empty(t, entry.StorageURL)

	// Cached now, so no second lookup.
	e.Enrich(context.Background(), sendBody("y", "file_lookup"), h)
	assert.Equal(t, 1, app.lookups)
}

func TestEnricher_NoLookupWithoutCredentials(t *testing.T) {
	vision := &fakeVision{reply: map[string]string{"file_lookup": "x"}}
	e, app, _ := newTestEnricher(t, vision, enabled())

	out := e.Enrich(context.Background(), sendBody("x", "file_lookup"), http.Header{})
	assert.False(t, out.Injected)
	assert.Equal(t, 0, app.lookups)
}

func TestRememberFileCreate(t *testing.T) {
	tests := []struct {
		name string
		req  string
		resp string
		want map[string]filecache.Entry
	}{
		{
			name: "positional pairing",
			req:  `{"0":{"json":{"url":"files/a.jpg","fileType":"image/jpeg"}},"1":{"json":{"url":"files/b.png","fileType":"image/png"}}}`,
			resp: `[{"result":{"data":{"json":{"id":"file_a","url":"/f/file_a"}}}},{"result":{"data":{"json":{"id":"file_b","url":"/f/file_b"}}}}]`,
			want: map[string]filecache.Entry{
				"file_a": {FileType: "image/jpeg", StorageURL: "files/a.jpg", ResponseURL: "/f/file_a"},
				"file_b": {FileType: "image/png", StorageURL: "files/b.png", ResponseURL: "/f/file_b"},
			},
		},
		{
			name: "single input pairs with every output",
			req:  `{"0":{"json":{"url":"files/a.jpg","hash":"h"}}}`,
			resp: `[{"id":"file_a"},{"id":"file_b","url":"/f/file_b"}]`,
			want: map[string]filecache.Entry{
				"file_a": {StorageURL: "files/a.jpg"},
				"file_b": {StorageURL: "files/a.jpg", ResponseURL: "/f/file_b"},
			},
		},
		{
			name: "extra outputs without inputs",
			req:  `[{"url":"files/a.jpg","size":1},{"url":"files/b.jpg","size":2}]`,
			resp: `[{"id":"file_a"},{"id":"file_b"},{"id":"file_c"}]`,
			want: map[string]filecache.Entry{
				"file_a": {StorageURL: "files/a.jpg"},
				"file_b": {StorageURL: "files/b.jpg"},
				"file_c": {},
			},
		},
		{
			name: "invalid response",
			req:  `{"url":"files/a.jpg","size":1}`,
			resp: `<html>`,
			want: map[string]filecache.Entry{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newCache(t)
			n := RememberFileCreate(cache, []byte(tt.req), []byte(tt.resp))
			assert.Equal(t, len(tt.want), n)
			assert.Equal(t, len(tt.want), cache.Len())
			for id, want := range tt.want {
				got, ok := cache.Get(id)
				require.True(t, ok, id)
				assert.Equal(t, want.FileType, got.FileType, id)
				assert.Equal(t, want.StorageURL, got.StorageURL, id)
				assert.Equal(t, want.ResponseURL, got.ResponseURL, id)
			}
		})
	}
}
