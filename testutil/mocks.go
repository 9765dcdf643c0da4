package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// MockGistServer is an in-memory stand-in for the GitHub gist endpoints used
// by the list store: GET and PATCH /gists/{id} and GET /gists/{id}/commits.
// Every PATCH bumps the version.
type MockGistServer struct {
	*httptest.Server

	mu      sync.Mutex
	gistID  string
	files   map[string]string
	version int

	// FailStatus, when non-zero, is returned for every request.
	FailStatus int
	// Gets, Patches and Commits count handled requests.
	Gets    int
	Patches int
	Commits int
	// LastAuth is the Authorization header of the latest request.
	LastAuth string
}

// NewMockGistServer creates a mock serving one gist with the given files.
func NewMockGistServer(t *testing.T, gistID string, files map[string]string) *MockGistServer {
	t.Helper()
	m := &MockGistServer{gistID: gistID, files: make(map[string]string), version: 1}
	for k, v := range files {
		m.files[k] = v
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// URL returns the API base URL with the trailing slash go-github expects.
func (m *MockGistServer) URL() string { return m.Server.URL + "/" }

// File returns the current content of name.
func (m *MockGistServer) File(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[name]
}

// SetFile replaces a file and bumps the version, as an out-of-band edit would.
func (m *MockGistServer) SetFile(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = content
	m.version++
}

// Version returns the current version token.
func (m *MockGistServer) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versionLocked()
}

func (m *MockGistServer) versionLocked() string { return fmt.Sprintf("v%d", m.version) }

func (m *MockGistServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastAuth = r.Header.Get("Authorization")

	if m.FailStatus != 0 {
		writeJSON(w, m.FailStatus, map[string]any{"message": http.StatusText(m.FailStatus)})
		return
	}
	id, sub, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/gists/"), "/")
	if id != m.gistID || (sub != "" && sub != "commits") {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	if sub == "commits" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		m.Commits++
		writeJSON(w, http.StatusOK, []map[string]any{{
			"url":     m.Server.URL + "/gists/" + m.gistID + "/" + m.versionLocked(),
			"version": m.versionLocked(),
		}})
		return
	}

	switch r.Method {
	case http.MethodGet:
		m.Gets++
	case http.MethodPatch:
		m.Patches++
		var body struct {
			Files map[string]struct {
				Content *string `json:"content"`
			} `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": err.Error()})
			return
		}
		for name, f := range body.Files {
			if f.Content != nil {
				m.files[name] = *f.Content
			}
		}
		m.version++
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, m.gistLocked())
}

func (m *MockGistServer) gistLocked() map[string]any {
	names := make([]string, 0, len(m.files))
	for k := range m.files {
		names = append(names, k)
	}
	sort.Strings(names)
	files := make(map[string]any, len(names))
	for _, name := range names {
		files[name] = map[string]any{
			"filename": name,
			"type":     "application/json",
			"content":  m.files[name],
			"size":     len(m.files[name]),
		}
	}
	return map[string]any{
		"id":    m.gistID,
		"files": files,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
