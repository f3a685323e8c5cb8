package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DoBuffersAndKeepsHost(t *testing.T) {
	var gotHost, gotBody, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	h := http.Header{}
	h.Set("Host", "chat.example.com")
	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    "/trpc/lambda/x",
		Header: h,
		Body:   []byte(`{"a":1}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, resp.OK())
	assert.Equal(t, "created", string(resp.Body))
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))
	assert.Equal(t, "chat.example.com", gotHost)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"a":1}`, gotBody)
}

func TestClient_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{URL: "/start"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode, "redirects are relayed, not followed")
	assert.Equal(t, "/end", resp.Header.Get("Location"))

	resp, err = c.Do(context.Background(), Request{URL: srv.URL + "/start", FollowRedirects: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "done", string(resp.Body))
}

func TestClient_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{URL: "/", MaxBytes: 99})
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	resp, err := c.Do(context.Background(), Request{URL: "/", MaxBytes: 100})
	require.NoError(t, err)
	assert.Len(t, resp.Body, 100)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithTimeout(time.Second))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Do(context.Background(), Request{URL: "/", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewClient_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewClient("lobe-chat-glass:3210/x")
	assert.Error(t, err)
	_, err = NewClient("/relative")
	assert.Error(t, err)
}

func TestClient_Resolve(t *testing.T) {
	c, err := NewClient("http://app:3210")
	require.NoError(t, err)

	got, err := c.Resolve("/f/file_1")
	require.NoError(t, err)
	assert.Equal(t, "http://app:3210/f/file_1", got)

	got, err = c.Resolve("https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", got)
}

func TestWrite_RecalculatesLength(t *testing.T) {
	rec := httptest.NewRecorder()
	h := http.Header{}
	h.Set("Content-Length", "999")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Content-Type", "text/plain")
	Write(rec, &Response{StatusCode: http.StatusTeapot, Header: h, Body: []byte("abc")})

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Header().Get("Transfer-Encoding"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "abc", rec.Body.String())
}
