// Package fetch is the http collaborator used for provider metadata, logos
// and remote imagery indexes.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultUserAgent = "tilesource/1.0"

// Client wraps an http client with the timeout configuration the catalog
// passes through and an optional request rate limit.
type Client struct {
	cl        *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outgoing requests, used for bulk index downloads.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent overrides the default user agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New builds a client with the given connect and read timeouts.
func New(connectTimeout, readTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		cl: &http.Client{
			Timeout: connectTimeout + readTimeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: readTimeout,
			},
		},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the document at the url. Any non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
