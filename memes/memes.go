// Package memes holds the curated list model: approved entries, the persisted
// list document and the error taxonomy used across the bot.
//
// The document is owned by an external store and is read, mutated and written
// back as a whole on every mutating command; nothing here is cached.
package memes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one approved item in the rotation.
type Entry struct {
	URL      string    `json:"url"`
	PublicID string    `json:"public_id,omitempty"`
	At       time.Time `json:"at,omitzero"`
}

// Document is the whole persisted state. Memes is ordered by approval time;
// delete-by-index and tail sampling depend on that order.
type Document struct {
	Memes []Entry

	// extra keeps unknown top-level keys so a rewrite does not drop them.
	extra map[string]json.RawMessage
}

// Snapshot is one read of the remote document: the key (file name) holding the
// payload, the remote version token and the parsed document.
type Snapshot struct {
	Key     string
	Version string
	Doc     *Document
}

// AuditEvent describes one completed list mutation.
type AuditEvent struct {
	Action   string
	Entry    Entry
	Actor    string
	Platform string
	Channel  string
	At       time.Time
}

// Audit actions.
const (
	ActionApprove = "approve"
	ActionDelete  = "delete"
)

// Len returns the number of entries.
func (d *Document) Len() int { return len(d.Memes) }

// Append adds e at the end of the list.
func (d *Document) Append(e Entry) { d.Memes = append(d.Memes, e) }

// RemoveAt removes and returns the entry at i, shifting later entries left.
func (d *Document) RemoveAt(i int) (Entry, error) {
	if i < 0 || i >= len(d.Memes) {
		return Entry{}, fmt.Errorf("remove index %d of %d: %w", i, len(d.Memes), ErrInvalidArgument)
	}
	e := d.Memes[i]
	d.Memes = append(d.Memes[:i:i], d.Memes[i+1:]...)
	return e, nil
}

// Tail returns the last n entries (fewer if the list is shorter) in stored order.
func (d *Document) Tail(n int) []Entry {
	if n <= 0 {
		return nil
	}
	if n > len(d.Memes) {
		n = len(d.Memes)
	}
	out := make([]Entry, n)
	copy(out, d.Memes[len(d.Memes)-n:])
	return out
}

// UnmarshalJSON requires a JSON object with a "memes" array whose entries all carry a url.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: document is null", ErrMalformedDocument)
	}
	list, ok := raw["memes"]
	if !ok {
		return fmt.Errorf("%w: missing memes field", ErrMalformedDocument)
	}
	var entries []Entry
	if err := json.Unmarshal(list, &entries); err != nil {
		return fmt.Errorf("%w: memes: %v", ErrMalformedDocument, err)
	}
	if entries == nil {
		return fmt.Errorf("%w: memes is not an array", ErrMalformedDocument)
	}
	for i, e := range entries {
		if e.URL == "" {
			return fmt.Errorf("%w: entry %d has no url", ErrMalformedDocument, i)
		}
	}
	delete(raw, "memes")
	d.Memes = entries
	d.extra = raw
	return nil
}

// MarshalJSON writes the memes array together with any preserved keys. Keys come out sorted.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.extra)+1)
	for k, v := range d.extra {
		out[k] = v
	}
	memes := d.Memes
	if memes == nil {
		memes = []Entry{}
	}
	out["memes"] = memes
	return json.Marshal(out)
}

// Parse decodes stored document text.
func Parse(text []byte) (*Document, error) {
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}
	d := &Document{}
	if err := d.UnmarshalJSON(text); err != nil {
		return nil, err
	}
	return d, nil
}

// Encode serializes d pretty-printed with a two-space indent.
func Encode(d *Document) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
