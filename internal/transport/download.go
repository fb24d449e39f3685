package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const maxRedirects = 5

var errRedirectNotAllowed = errors.New("redirect to a host outside the allow list")

// DownloadProxy streams files from allowed hosts back to the caller as
// attachments.
type DownloadProxy struct {
	client  *resty.Client
	allowed []string
	log     zerolog.Logger
}

func NewDownloadProxy(allowedHosts []string, timeout time.Duration, log zerolog.Logger) *DownloadProxy {
	allowed := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed = append(allowed, h)
		}
	}
	p := &DownloadProxy{
		allowed: allowed,
		log:     log.With().Str("component", "download-proxy").Logger(),
	}
	// every hop must pass the same check as the requested URL
	p.client = resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(
			resty.FlexibleRedirectPolicy(maxRedirects),
			resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
				if !p.allowedURL(req.URL) {
					return fmt.Errorf("%w: %s", errRedirectNotAllowed, req.URL.Host)
				}
				return nil
			}),
		)
	return p
}

func (p *DownloadProxy) allowedURL(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && p.Allowed(u.Hostname())
}

// Allowed reports whether host equals an allowed suffix or is a subdomain of one.
func (p *DownloadProxy) Allowed(host string) bool {
	host = strings.ToLower(host)
	for _, s := range p.allowed {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// Handle serves GET /v1/download?url=&filename=.
func (p *DownloadProxy) Handle(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		badRequest(c, "Missing url param")
		return
	}
	filename := c.Query("filename")
	if filename == "" {
		filename = "download"
	}

	u, err := url.Parse(raw)
	if err != nil || !p.allowedURL(u) {
		badRequest(c, "Invalid URL")
		return
	}

	resp, err := p.client.R().
		SetContext(c.Request.Context()).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		p.log.Error().Err(err).Str("host", u.Host).Msg("upstream request failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Upstream fetch failed"})
		return
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		c.AbortWithStatusJSON(resp.StatusCode(), gin.H{"error": "Upstream fetch failed"})
		return
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, resp.RawResponse.ContentLength, contentType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, sanitizeFilename(filename)),
		"Cache-Control":       "no-store",
	})
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
}
