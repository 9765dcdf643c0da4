package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/meme-curator/memes"
	"github.com/onnwee/meme-curator/telemetry"
)

// Handlers serves the HTTP routes.
type Handlers struct {
	deps Deps

	mu        sync.Mutex // guards the feed cache
	feed      *memes.Snapshot
	fetchedAt time.Time
	now       func() time.Time
}

// HandleHealthz responds to liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports not_ready when the audit database is unreachable or no
// chat adapter is connected.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.deps.DB == nil {
				return nil
			}
			return h.deps.DB.PingContext(r.Context())
		}},
		{"chat", func() error {
			if h.deps.ChatConnected != nil && !h.deps.ChatConnected() {
				return errors.New("no chat platform connected")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleMemes returns the current list document for the overlay. Reads are
// served from a snapshot cached for Deps.FeedTTL, and a matching If-None-Match
// gets 304 without a body.
func (h *Handlers) HandleMemes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.feedSnapshot(r)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("fetch meme list", slog.String("kind", string(memes.Classify(err))), slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "meme list unavailable", http.StatusBadGateway)
		return
	}
	body, err := memes.Encode(snap.Doc)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if snap.Version != "" {
		etag := `"` + snap.Version + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handlers) feedSnapshot(r *http.Request) (*memes.Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	if h.feed != nil && h.deps.FeedTTL > 0 && now().Sub(h.fetchedAt) < h.deps.FeedTTL {
		return h.feed, nil
	}
	snap, err := h.deps.Store.Fetch(r.Context())
	if err != nil {
		return nil, err
	}
	h.feed, h.fetchedAt = snap, now()
	return snap, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
