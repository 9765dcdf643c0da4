package memes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func sampleDoc(n int) *Document {
	d := &Document{}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		d.Append(Entry{
			URL:      fmt.Sprintf("https://res.example.com/m%d.png", i),
			PublicID: fmt.Sprintf("stream_memes/m%d", i),
			At:       base.Add(time.Duration(i) * time.Minute),
		})
	}
	return d
}

func TestRoundTrip(t *testing.T) {
	d := sampleDoc(4)
	d.Memes[2].PublicID = "" // entry created out of band

	text, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got.Len() != d.Len() {
		t.Fatalf("len = %d, want %d", got.Len(), d.Len())
	}
	for i := range d.Memes {
		w, g := d.Memes[i], got.Memes[i]
		if g.URL != w.URL || g.PublicID != w.PublicID || !g.At.Equal(w.At) {
			t.Errorf("entry %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestEncodeWireFormat(t *testing.T) {
	d := sampleDoc(1)
	text, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	s := string(text)
	for _, want := range []string{`"memes": [`, `"url": "https://res.example.com/m0.png"`, `"public_id": "stream_memes/m0"`, `"at": "2024-05-01T12:00:00Z"`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded document missing %s:\n%s", want, s)
		}
	}

	empty, err := Encode(&Document{})
	if err != nil {
		t.Fatalf("Encode(empty) error: %v", err)
	}
	if !strings.Contains(string(empty), `"memes": []`) {
		t.Errorf("empty document should encode an empty array, got %s", empty)
	}
}

func TestParseAcceptsJavaScriptTimestamps(t *testing.T) {
	text := `{"memes":[{"url":"https://a/1.png","public_id":"p1","at":"2024-03-09T18:22:31.123Z"},{"url":"https://a/2.gif"}]}`
	d, err := Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("len = %d, want 2", d.Len())
	}
	if d.Memes[0].At.Nanosecond() != 123000000 {
		t.Errorf("millisecond precision lost: %v", d.Memes[0].At)
	}
	if !d.Memes[1].At.IsZero() || d.Memes[1].PublicID != "" {
		t.Errorf("out-of-band entry should have zero at/public_id, got %+v", d.Memes[1])
	}
	out, _ := Encode(d)
	if strings.Count(string(out), `"at"`) != 1 {
		t.Errorf("unset timestamp should be omitted on rewrite:\n%s", out)
	}
}

func TestParsePreservesUnknownKeys(t *testing.T) {
	text := `{"interval": 15, "memes": [], "theme": {"border": "pink"}}`
	d, err := Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	d.Append(Entry{URL: "https://a/new.png"})
	out, err := Encode(d)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if back["interval"] != float64(15) {
		t.Errorf("interval = %v, want 15", back["interval"])
	}
	if theme, ok := back["theme"].(map[string]any); !ok || theme["border"] != "pink" {
		t.Errorf("theme not preserved: %v", back["theme"])
	}
	// sorted keys: interval < memes < theme
	if i, j := strings.Index(string(out), `"interval"`), strings.Index(string(out), `"theme"`); i > j {
		t.Errorf("keys not in stable order:\n%s", out)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not json", "memes: []"},
		{"array", `[{"url":"x"}]`},
		{"null", "null"},
		{"missing memes", `{"items": []}`},
		{"memes null", `{"memes": null}`},
		{"memes object", `{"memes": {"url": "x"}}`},
		{"entry without url", `{"memes": [{"url": "https://a"}, {"public_id": "p"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.text))
			if !errors.Is(err, ErrMalformedDocument) {
				t.Fatalf("Parse(%q) error = %v, want ErrMalformedDocument", tt.text, err)
			}
		})
	}
}

func TestRemoveAt(t *testing.T) {
	for i := 0; i < 5; i++ {
		d := sampleDoc(5)
		orig := append([]Entry(nil), d.Memes...)
		removed, err := d.RemoveAt(i)
		if err != nil {
			t.Fatalf("RemoveAt(%d) error: %v", i, err)
		}
		if removed.URL != orig[i].URL {
			t.Errorf("RemoveAt(%d) returned %s, want %s", i, removed.URL, orig[i].URL)
		}
		if d.Len() != 4 {
			t.Fatalf("len after RemoveAt(%d) = %d, want 4", i, d.Len())
		}
		want := append(append([]Entry(nil), orig[:i]...), orig[i+1:]...)
		for j := range want {
			if d.Memes[j].URL != want[j].URL {
				t.Errorf("RemoveAt(%d): position %d = %s, want %s", i, j, d.Memes[j].URL, want[j].URL)
			}
		}
	}
}

func TestRemoveAtOutOfRange(t *testing.T) {
	d := sampleDoc(3)
	for _, i := range []int{-1, 3, 100} {
		if _, err := d.RemoveAt(i); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("RemoveAt(%d) error = %v, want ErrInvalidArgument", i, err)
		}
	}
	if d.Len() != 3 {
		t.Errorf("failed removals mutated the list: len = %d", d.Len())
	}
	empty := &Document{}
	if _, err := empty.RemoveAt(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RemoveAt on empty list error = %v, want ErrInvalidArgument", err)
	}
}

func TestTail(t *testing.T) {
	d := sampleDoc(5)
	tail := d.Tail(3)
	if len(tail) != 3 {
		t.Fatalf("Tail(3) len = %d, want 3", len(tail))
	}
	for i, e := range tail {
		if want := d.Memes[2+i].URL; e.URL != want {
			t.Errorf("Tail(3)[%d] = %s, want %s", i, e.URL, want)
		}
	}
	if got := sampleDoc(2).Tail(3); len(got) != 2 {
		t.Errorf("Tail(3) of 2 entries len = %d, want 2", len(got))
	}
	if got := (&Document{}).Tail(3); len(got) != 0 {
		t.Errorf("Tail(3) of empty list len = %d, want 0", len(got))
	}
	tail[0].URL = "changed"
	if d.Memes[2].URL == "changed" {
		t.Errorf("Tail must return a copy")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("fetch: %w", ErrRemoteUnavailable), KindRemoteUnavailable},
		{fmt.Errorf("parse: %w", ErrMalformedDocument), KindMalformedDocument},
		{fmt.Errorf("upload: %w", ErrUploadFailed), KindUploadFailed},
		{fmt.Errorf("index: %w", ErrInvalidArgument), KindInvalidArgument},
		{ErrUnauthorized, KindUnauthorized},
		{fmt.Errorf("save: %w", ErrConflict), KindConflict},
		{errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if !IsUserFacing(ErrUnauthorized) || !IsUserFacing(fmt.Errorf("x: %w", ErrInvalidArgument)) {
		t.Errorf("unauthorized and invalid argument should be user facing")
	}
	if IsUserFacing(ErrRemoteUnavailable) {
		t.Errorf("remote errors must not be user facing")
	}
}
