// Package media wraps the Cloudinary upload API: it ingests a source URL into a
// fixed folder and deletes hosted assets by public id.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/meme-curator/memes"
	"github.com/onnwee/meme-curator/telemetry"
)

// uploadAPI is the subset of *uploader.API used here.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Asset is a hosted copy of an approved image.
type Asset struct {
	URL      string
	PublicID string
}

// Options configures a Client.
type Options struct {
	CloudName string
	APIKey    string
	APISecret string
	// Folder receives every upload.
	Folder string
	// DestroyResourceType is sent with deletions; "auto" when empty.
	DestroyResourceType string
	Timeout             time.Duration
}

// Client uploads to and deletes from Cloudinary.
type Client struct {
	api         uploadAPI
	folder      string
	destroyType string
	timeout     time.Duration
}

// New creates a Cloudinary-backed client.
func New(opts Options) (*Client, error) {
	cld, err := cloudinary.NewFromParams(opts.CloudName, opts.APIKey, opts.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return newClient(&cld.Upload, opts), nil
}

func newClient(api uploadAPI, opts Options) *Client {
	c := &Client{api: api, folder: opts.Folder, destroyType: opts.DestroyResourceType, timeout: opts.Timeout}
	if c.destroyType == "" {
		c.destroyType = "auto"
	}
	return c
}

// Upload asks the media host to fetch sourceURL, detecting the resource type.
// Any rejection is reported as memes.ErrUploadFailed.
func (c *Client) Upload(ctx context.Context, sourceURL string) (Asset, error) {
	ctx, span := telemetry.StartSpan(ctx, "media", "media.upload", attribute.String("media.source", sourceURL))
	done := telemetry.Observe(telemetry.MediaDuration, "upload")
	asset, err := c.upload(ctx, sourceURL)
	done()
	telemetry.EndSpan(span, err)
	return asset, err
}

func (c *Client) upload(ctx context.Context, sourceURL string) (Asset, error) {
	if sourceURL == "" {
		return Asset{}, fmt.Errorf("upload: empty source url: %w", memes.ErrInvalidArgument)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.api.Upload(ctx, sourceURL, uploader.UploadParams{
		Folder:       c.folder,
		ResourceType: "auto",
	})
	if err != nil {
		return Asset{}, fmt.Errorf("upload %s: %w: %w", sourceURL, memes.ErrUploadFailed, err)
	}
	if res == nil {
		return Asset{}, fmt.Errorf("upload %s: empty response: %w", sourceURL, memes.ErrUploadFailed)
	}
	if res.Error.Message != "" {
		return Asset{}, fmt.Errorf("upload %s: %s: %w", sourceURL, res.Error.Message, memes.ErrUploadFailed)
	}
	if res.SecureURL == "" {
		return Asset{}, fmt.Errorf("upload %s: no secure url in response: %w", sourceURL, memes.ErrUploadFailed)
	}
	return Asset{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

// Remove deletes a hosted asset. Callers treat failures as warnings.
func (c *Client) Remove(ctx context.Context, publicID string) error {
	ctx, span := telemetry.StartSpan(ctx, "media", "media.remove", attribute.String("media.public_id", publicID))
	done := telemetry.Observe(telemetry.MediaDuration, "remove")
	err := c.remove(ctx, publicID)
	done()
	telemetry.EndSpan(span, err)
	return err
}

func (c *Client) remove(ctx context.Context, publicID string) error {
	if publicID == "" {
		return errors.New("remove: empty public id")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: c.destroyType,
	})
	if err != nil {
		return fmt.Errorf("destroy %s: %w: %w", publicID, memes.ErrRemoteUnavailable, err)
	}
	if res == nil {
		return fmt.Errorf("destroy %s: empty response", publicID)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("destroy %s: %s", publicID, res.Error.Message)
	}
	if res.Result != "ok" {
		return fmt.Errorf("destroy %s: result %q", publicID, res.Result)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
