package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/meme-curator/gist"
	"github.com/onnwee/meme-curator/memes"
	"github.com/onnwee/meme-curator/testutil"
)

type stubReader struct {
	snap *memes.Snapshot
	err  error
}

func (s stubReader) Fetch(ctx context.Context) (*memes.Snapshot, error) { return s.snap, s.err }

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	rr := get(t, NewMux(Deps{Store: stubReader{}}), "/healthz", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	connected := false
	h := NewMux(Deps{Store: stubReader{}, ChatConnected: func() bool { return connected }})

	rr := get(t, h, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503 while chat is down", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["failed_check"] != "chat" {
		t.Errorf("failed_check = %q, want chat", body["failed_check"])
	}

	connected = true
	if rr := get(t, h, "/readyz", nil); rr.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rr.Code)
	}
}

func TestMemesFeed(t *testing.T) {
	doc := &memes.Document{Memes: []memes.Entry{{URL: "https://res.example.com/a.png", PublicID: "stream_memes/a", At: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}}}
	h := NewMux(Deps{Store: stubReader{snap: &memes.Snapshot{Key: "memes.json", Version: "abc", Doc: doc}}})

	rr := get(t, h, "/memes", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if etag := rr.Header().Get("ETag"); etag != `"abc"` {
		t.Errorf("ETag = %q", etag)
	}
	got, err := memes.Parse(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("feed is not a list document: %v", err)
	}
	if got.Len() != 1 || got.Memes[0].URL != "https://res.example.com/a.png" {
		t.Errorf("feed = %+v", got.Memes)
	}
}

type countingReader struct {
	fetches int
	version string
}

func (c *countingReader) Fetch(ctx context.Context) (*memes.Snapshot, error) {
	c.fetches++
	return &memes.Snapshot{Key: "memes.json", Version: c.version, Doc: &memes.Document{Memes: []memes.Entry{}}}, nil
}

func TestMemesFeedCache(t *testing.T) {
	store := &countingReader{version: "v1"}
	h := &Handlers{deps: Deps{Store: store, FeedTTL: 5 * time.Second}}
	now := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		h.HandleMemes(rr, httptest.NewRequest(http.MethodGet, "/memes", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	}
	if store.fetches != 1 {
		t.Errorf("fetches within TTL = %d, want 1", store.fetches)
	}

	now = now.Add(6 * time.Second)
	store.version = "v2"
	rr := httptest.NewRecorder()
	h.HandleMemes(rr, httptest.NewRequest(http.MethodGet, "/memes", nil))
	if store.fetches != 2 || rr.Header().Get("ETag") != `"v2"` {
		t.Errorf("expired cache: fetches=%d etag=%q", store.fetches, rr.Header().Get("ETag"))
	}
}

func TestMemesFeedWithoutCache(t *testing.T) {
	store := &countingReader{version: "v1"}
	h := NewMux(Deps{Store: store})
	get(t, h, "/memes", nil)
	get(t, h, "/memes", nil)
	if store.fetches != 2 {
		t.Errorf("fetches = %d, want 2 with caching disabled", store.fetches)
	}
}

func TestMemesFeedNotModified(t *testing.T) {
	h := NewMux(Deps{Store: &countingReader{version: "v7"}})
	rr := get(t, h, "/memes", map[string]string{"If-None-Match": `"v7"`})
	if rr.Code != http.StatusNotModified || rr.Body.Len() != 0 {
		t.Errorf("status = %d body = %q, want 304 without body", rr.Code, rr.Body.String())
	}
	rr = get(t, h, "/memes", map[string]string{"If-None-Match": `"v6"`})
	if rr.Code != http.StatusOK {
		t.Errorf("stale etag status = %d, want 200", rr.Code)
	}
}

func TestMemesFeedStoreFailure(t *testing.T) {
	h := NewMux(Deps{Store: stubReader{err: fmt.Errorf("get gist: %w", memes.ErrRemoteUnavailable)}})
	rr := get(t, h, "/memes", nil)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "gist") {
		t.Errorf("upstream error leaked: %q", rr.Body.String())
	}
}

func TestMemesFeedRejectsWrites(t *testing.T) {
	h := NewMux(Deps{Store: stubReader{}})
	req := httptest.NewRequest(http.MethodPost, "/memes", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestMemesFeedFromGist(t *testing.T) {
	srv := testutil.NewMockGistServer(t, "g1", map[string]string{
		"memes.json": `{"memes":[{"url":"https://res.example.com/a.png"},{"url":"https://res.example.com/b.png"}]}`,
	})
	store, err := gist.New(context.Background(), gist.Options{GistID: "g1", Token: "t", BaseURL: srv.URL()})
	if err != nil {
		t.Fatalf("gist.New: %v", err)
	}
	ts := httptest.NewServer(NewMux(Deps{Store: store}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/memes")
	if err != nil {
		t.Fatalf("GET /memes: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	doc, err := memes.Parse(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Len() != 2 {
		t.Errorf("len = %d, want 2", doc.Len())
	}
}

func TestCorrelationHeader(t *testing.T) {
	h := NewMux(Deps{Store: stubReader{}})
	rr := get(t, h, "/healthz", map[string]string{"X-Correlation-ID": "corr-1"})
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-1" {
		t.Errorf("X-Correlation-ID = %q, want echo", got)
	}
	rr = get(t, h, "/healthz", nil)
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := get(t, NewMux(Deps{Store: stubReader{}}), "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("metrics = %d", rr.Code)
	}
}

func TestStartShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, "127.0.0.1:0", Deps{Store: stubReader{}}) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
