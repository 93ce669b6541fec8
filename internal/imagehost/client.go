// Package imagehost is an HTTP client for the external media host that
// stores product images. The host follows the usual media-API shape: a
// signed multipart upload endpoint returning a secure URL plus an asset id,
// and a signed destroy endpoint keyed by that asset id.
package imagehost

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/dmarkhas/catalog-api/internal/domain/asset"
)

// Config holds the connection settings for the media host.
type Config struct {
	// BaseURL is the API root, e.g. https://media.example.com/v1/demo.
	BaseURL string
	// APIKey identifies the account.
	APIKey string
	// APISecret signs upload and destroy requests.
	APISecret string
	// Folder is the remote folder uploads land in.
	Folder string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

var _ asset.Gateway = (*Client)(nil)

// Client implements asset.Gateway over HTTP.
type Client struct {
	cfg   Config
	httpc *http.Client
	lg    *zap.Logger
	now   func() time.Time
}

// New creates a Client for the given host configuration.
func New(cfg Config, lg *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		lg:    lg.Named("imagehost"),
		now:   time.Now,
	}
}

// UploadMany uploads all files sequentially. It fails on the first upload
// error: a half-uploaded batch is surfaced to the caller, which decides
// whether to compensate.
func (c *Client) UploadMany(ctx context.Context, files []asset.File) ([]asset.Upload, error) {
	uploads := make([]asset.Upload, 0, len(files))
	for _, f := range files {
		u, err := c.upload(ctx, f)
		if err != nil {
			return nil, errors.Wrapf(err, "upload %q", f.Name)
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

// DeleteOne removes a single asset from the host.
func (c *Client) DeleteOne(ctx context.Context, assetID string) error {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	form := url.Values{
		"public_id": {assetID},
		"api_key":   {c.cfg.APIKey},
		"timestamp": {ts},
		"signature": {c.sign("public_id=" + assetID + "&timestamp=" + ts)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/image/destroy", strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build destroy request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "destroy request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("destroy %q: status %d: %s", assetID, resp.StatusCode, body)
	}
	return nil
}

// DeleteMany removes all given assets, continuing past individual failures.
// Partial success is possible; failed ids are reported in one aggregated
// error.
func (c *Client) DeleteMany(ctx context.Context, assetIDs []string) error {
	var failed []string
	for _, id := range assetIDs {
		if err := c.DeleteOne(ctx, id); err != nil {
			c.lg.Warn("asset delete failed", zap.String("asset_id", id), zap.Error(err))
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("delete assets: %d of %d failed: %s",
			len(failed), len(assetIDs), strings.Join(failed, ", "))
	}
	return nil
}

func (c *Client) upload(ctx context.Context, f asset.File) (asset.Upload, error) {
	ts := strconv.FormatInt(c.now().Unix(), 10)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return asset.Upload{}, errors.Wrap(err, "create form file")
	}
	if _, err := part.Write(f.Data); err != nil {
		return asset.Upload{}, errors.Wrap(err, "write file part")
	}
	fields := map[string]string{
		"api_key":   c.cfg.APIKey,
		"folder":    c.cfg.Folder,
		"timestamp": ts,
		"signature": c.sign("folder=" + c.cfg.Folder + "&timestamp=" + ts),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return asset.Upload{}, errors.Wrapf(err, "write field %q", k)
		}
	}
	if err := mw.Close(); err != nil {
		return asset.Upload{}, errors.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/image/upload", &body)
	if err != nil {
		return asset.Upload{}, errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return asset.Upload{}, errors.Wrap(err, "upload request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return asset.Upload{}, errors.Wrap(err, "read upload response")
	}
	if resp.StatusCode != http.StatusOK {
		return asset.Upload{}, errors.Errorf("status %d: %s", resp.StatusCode, data)
	}

	return parseUploadResponse(data)
}

// parseUploadResponse extracts secure_url and public_id from the host's JSON
// response, ignoring the rest of the payload.
func parseUploadResponse(data []byte) (asset.Upload, error) {
	var u asset.Upload
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "secure_url":
			v, err := d.Str()
			if err != nil {
				return err
			}
			u.SecureURL = v
		case "public_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			u.AssetID = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return asset.Upload{}, errors.Wrap(err, "decode upload response")
	}
	if u.SecureURL == "" || u.AssetID == "" {
		return asset.Upload{}, errors.New("upload response missing secure_url or public_id")
	}
	return u, nil
}

// sign computes the request signature: SHA-256 over the sorted parameter
// string concatenated with the API secret, hex-encoded.
func (c *Client) sign(params string) string {
	sum := sha256.Sum256([]byte(params + c.cfg.APISecret))
	return hex.EncodeToString(sum[:])
}
