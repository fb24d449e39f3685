package transform

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"cloudmedia/internal/common"
)

// ErrTooLarge is returned when a fetched artifact exceeds MaxFetchBytes.
var ErrTooLarge = errors.New("transformed file too large to process")

// Client talks to the Cloudinary upload, admin and delivery endpoints.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewClient creates a new Cloudinary client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.cloudinary.com"
	}
	if cfg.DeliveryBaseURL == "" {
		cfg.DeliveryBaseURL = "https://res.cloudinary.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxFetchBytes <= 0 {
		cfg.MaxFetchBytes = 110 * common.MB
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.DeliveryBaseURL = strings.TrimRight(cfg.DeliveryBaseURL, "/")

	return &Client{
		cfg: cfg,
		http: resty.New().
			SetHeader("User-Agent", "cloudmedia/1.0").
			SetTimeout(cfg.Timeout),
		logger: logger.With().Str("component", "cloudinary").Logger(),
		now:    time.Now,
	}
}

// Upload stores data under the given resource type.
func (c *Client) Upload(ctx context.Context, p UploadParams) (*UploadResult, error) {
	rt := p.ResourceType
	if rt == "" {
		rt = common.ResourceAuto
	}

	params := map[string]string{"timestamp": c.timestamp()}
	if p.PublicID != "" {
		params["public_id"] = p.PublicID
	}
	if p.Folder != "" {
		params["folder"] = p.Folder
	}
	if p.Format != "" {
		params["format"] = p.Format
	}
	if p.Overwrite {
		params["overwrite"] = "true"
	}
	if p.Invalidate {
		params["invalidate"] = "true"
	}
	c.sign(params)

	filename := p.Filename
	if filename == "" {
		filename = "file"
	}

	var result UploadResult
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(params).
		SetFileReader("file", filename, bytes.NewReader(p.Data)).
		SetResult(&result).
		SetError(&apiErr).
		Post(c.apiURL(rt, "upload"))
	if err := c.check("upload", resp, err, &apiErr); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("public_id", result.PublicID).
		Str("resource_type", result.ResourceType).
		Int64("bytes", result.Bytes).
		Msg("uploaded")
	return &result, nil
}

// Explicit applies one eager transformation synchronously and returns the
// derived asset.
func (c *Client) Explicit(ctx context.Context, publicID, resourceType string, chain Chain, format string) (*EagerResult, error) {
	params := map[string]string{
		"public_id":   publicID,
		"type":        "upload",
		"eager":       chain.Eager(format),
		"eager_async": "false",
		"timestamp":   c.timestamp(),
	}
	c.sign(params)

	var result explicitResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(params).
		SetResult(&result).
		SetError(&apiErr).
		Post(c.apiURL(resourceType, "explicit"))
	if err := c.check("explicit", resp, err, &apiErr); err != nil {
		return nil, err
	}

	if len(result.Eager) == 0 || result.Eager[0].SecureURL == "" {
		return nil, common.Backend("explicit", errors.New("transformation processing failed"))
	}
	return &result.Eager[0], nil
}

// Resource looks up stored metadata through the Admin API.
func (c *Client) Resource(ctx context.Context, resourceType, publicID string) (*Resource, error) {
	var result Resource
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret).
		SetQueryParam("pages", "true").
		SetResult(&result).
		SetError(&apiErr).
		Get(fmt.Sprintf("%s/v1_1/%s/resources/%s/upload/%s",
			c.cfg.APIBaseURL, c.cfg.CloudName, resourceType, escapePublicID(publicID)))
	if err := c.check("resource", resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeliveryURL builds the on-the-fly delivery URL for publicID.
func (c *Client) DeliveryURL(resourceType, publicID, format string, chain Chain) string {
	segments := []string{c.cfg.DeliveryBaseURL, c.cfg.CloudName, resourceType, "upload"}
	if t := chain.String(); t != "" {
		segments = append(segments, t)
	}
	name := publicID
	if format != "" {
		name += "." + format
	}
	return strings.Join(append(segments, name), "/")
}

// Fetch downloads a delivery URL, refusing bodies over MaxFetchBytes.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-store").
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return nil, common.Backend("fetch", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		c.logger.Error().Int("status", resp.StatusCode()).Str("url", rawURL).Msg("fetch failed")
		return nil, common.NewError(common.KindBackend, "fetch",
			fmt.Sprintf("Failed to fetch file (HTTP %d)", resp.StatusCode()), nil)
	}

	if n, err := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64); err == nil && n > c.cfg.MaxFetchBytes {
		return nil, common.NewError(common.KindTooLarge, "fetch", "", ErrTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(body, c.cfg.MaxFetchBytes+1))
	if err != nil {
		return nil, common.Backend("fetch", err)
	}
	if int64(len(data)) > c.cfg.MaxFetchBytes {
		return nil, common.NewError(common.KindTooLarge, "fetch", "", ErrTooLarge)
	}
	return data, nil
}

func (c *Client) check(op string, resp *resty.Response, err error, apiErr *apiError) error {
	if err != nil {
		return common.Backend(op, err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Error().Str("op", op).Int("status", resp.StatusCode()).Str("message", msg).Msg("cloudinary request failed")
		return common.Backend(op, errors.New(msg))
	}
	return nil
}

func (c *Client) apiURL(resourceType, action string) string {
	return fmt.Sprintf("%s/v1_1/%s/%s/%s", c.cfg.APIBaseURL, c.cfg.CloudName, resourceType, action)
}

func (c *Client) timestamp() string {
	return strconv.FormatInt(c.now().Unix(), 10)
}

func (c *Client) sign(params map[string]string) {
	params["signature"] = Sign(params, c.cfg.APISecret)
	params["api_key"] = c.cfg.APIKey
}

// Sign computes the request signature: SHA-1 over the sorted key=value
// pairs joined by "&", followed by the API secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		switch k {
		case "file", "api_key", "resource_type", "cloud_name", "signature":
			continue
		}
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func escapePublicID(publicID string) string {
	parts := strings.Split(publicID, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return path.Join(parts...)
}
