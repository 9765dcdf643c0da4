// Package gist is the remote list store: the rotation list lives as JSON text in
// one file of a GitHub gist and is read and rewritten whole.
//
// The version token of a snapshot is the latest revision id from the gist commit
// list. Save re-reads the gist to rediscover the file name before writing and
// refuses to overwrite when that revision no longer matches the snapshot being
// saved (memes.ErrConflict).
package gist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/onnwee/meme-curator/memes"
	"github.com/onnwee/meme-curator/telemetry"
)

// Options configures a Client.
type Options struct {
	GistID string
	Token  string
	// Filename pins the gist file holding the list. Empty selects the first file by name.
	Filename string
	// BaseURL overrides the GitHub API endpoint (GitHub Enterprise, tests).
	BaseURL string
	Timeout time.Duration
}

// Client reads and writes the list document.
type Client struct {
	gh       *github.Client
	gistID   string
	filename string
}

// New builds a client authenticating with a static bearer token.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.GistID == "" {
		return nil, errors.New("gist id empty")
	}
	var hc *http.Client
	if opts.Token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	} else {
		hc = &http.Client{}
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	gh := github.NewClient(hc)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		gh.BaseURL = u
	}
	return &Client{gh: gh, gistID: opts.GistID, filename: opts.Filename}, nil
}

// Fetch reads the gist and parses the list file.
func (c *Client) Fetch(ctx context.Context) (*memes.Snapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "gist", "gist.fetch", attribute.String("gist.id", c.gistID))
	done := telemetry.Observe(telemetry.StoreDuration, "fetch")
	snap, err := c.fetch(ctx)
	done()
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	telemetry.SetListSize(snap.Doc.Len())
	return snap, nil
}

// Save writes snap.Doc back to the gist. On success snap.Version is advanced so
// the same snapshot can be saved again.
func (c *Client) Save(ctx context.Context, snap *memes.Snapshot) error {
	ctx, span := telemetry.StartSpan(ctx, "gist", "gist.save", attribute.String("gist.id", c.gistID))
	done := telemetry.Observe(telemetry.StoreDuration, "save")
	err := c.save(ctx, snap)
	done()
	telemetry.EndSpan(span, err)
	if errors.Is(err, memes.ErrConflict) {
		telemetry.CountConflict()
	}
	return err
}

func (c *Client) fetch(ctx context.Context) (*memes.Snapshot, error) {
	g, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	key, err := c.pickFile(g)
	if err != nil {
		return nil, err
	}
	f := g.Files[github.GistFilename(key)]
	doc, err := memes.Parse([]byte(f.GetContent()))
	if err != nil {
		return nil, fmt.Errorf("parse gist file %s: %w", key, err)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return nil, err
	}
	return &memes.Snapshot{Key: key, Version: ver, Doc: doc}, nil
}

func (c *Client) save(ctx context.Context, snap *memes.Snapshot) error {
	if snap == nil || snap.Doc == nil {
		return fmt.Errorf("save: nil document: %w", memes.ErrInvalidArgument)
	}
	g, err := c.get(ctx)
	if err != nil {
		return err
	}
	key, err := c.pickFile(g)
	if err != nil {
		return err
	}
	if snap.Version != "" {
		cur, err := c.version(ctx)
		if err != nil {
			return err
		}
		if cur != snap.Version {
			return fmt.Errorf("save gist %s: read %s, now %s: %w", c.gistID, snap.Version, cur, memes.ErrConflict)
		}
	}
	body, err := memes.Encode(snap.Doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, _, err = c.gh.Gists.Edit(ctx, c.gistID, &github.Gist{
		Files: map[github.GistFilename]github.GistFile{
			github.GistFilename(key): {Content: github.String(string(body))},
		},
	})
	if err != nil {
		return remoteErr("edit gist", err)
	}
	snap.Key = key
	// the write landed; a failed version read only costs the next save its conflict check
	if snap.Version, err = c.version(ctx); err != nil {
		snap.Version = ""
	}
	return nil
}

func (c *Client) get(ctx context.Context) (*github.Gist, error) {
	g, _, err := c.gh.Gists.Get(ctx, c.gistID)
	if err != nil {
		return nil, remoteErr("get gist", err)
	}
	return g, nil
}

// pickFile resolves which gist file holds the list.
func (c *Client) pickFile(g *github.Gist) (string, error) {
	if c.filename != "" {
		if _, ok := g.Files[github.GistFilename(c.filename)]; !ok {
			return "", fmt.Errorf("gist %s has no file %q: %w", c.gistID, c.filename, memes.ErrMalformedDocument)
		}
		return c.filename, nil
	}
	if len(g.Files) == 0 {
		return "", fmt.Errorf("gist %s has no files: %w", c.gistID, memes.ErrMalformedDocument)
	}
	names := make([]string, 0, len(g.Files))
	for name := range g.Files {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names[0], nil
}

// version returns the id of the latest gist revision. The gist object itself
// carries no revision, so it is read from the commit list.
func (c *Client) version(ctx context.Context) (string, error) {
	commits, _, err := c.gh.Gists.ListCommits(ctx, c.gistID, &github.ListOptions{PerPage: 1})
	if err != nil {
		return "", remoteErr("list gist commits", err)
	}
	if len(commits) == 0 {
		return "", nil
	}
	return commits[0].GetVersion(), nil
}

func remoteErr(op string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return fmt.Errorf("%s: status %d: %w: %w", op, ghErr.Response.StatusCode, memes.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, memes.ErrRemoteUnavailable, err)
}
