// Package fetcher retrieves artist albums and album tracks from the catalog API.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Defaults follow the upstream API limits.
const (
	DefaultBaseURL        = "https://api.spotify.com/v1"
	DefaultAlbumGroupSize = 20
	DefaultConcurrency    = 16
	DefaultPageSize       = 50
	DefaultEmbeddedTracks = 20
	defaultTimeout        = 15 * time.Second
	maxErrorBody          = 512
)

// Config controls request shapes and fan-out.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	AlbumGroupSize int
	Concurrency    int
	PageSize       int
	// EmbeddedTracks is how many tracks of each album the batch endpoint is
	// trusted to return; phase two starts at this offset.
	EmbeddedTracks int
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.AlbumGroupSize <= 0 {
		c.AlbumGroupSize = DefaultAlbumGroupSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.EmbeddedTracks <= 0 {
		c.EmbeddedTracks = DefaultEmbeddedTracks
	}
	return c
}

// Waiter gates outgoing requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Client implements catalog.CatalogFetcher over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  catalog.TokenSource
	limiter Waiter
	logger  *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLimiter gates every request through w.
func WithLimiter(w Waiter) Option {
	return func(c *Client) {
		c.limiter = w
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Client that authenticates with tokens.
func New(cfg Config, tokens catalog.TokenSource, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.Timeout, Transport: newHTTPTransport()},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("fetcher")
	return c
}

// getJSON issues an authenticated GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: obtain token: %w", catalog.ErrUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream(endpoint, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: get %s: %w", catalog.ErrUpstream, endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	metrics.ObserveUpstream(endpoint, resp.StatusCode)

	if err := classifyStatus(endpoint, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", catalog.ErrMalformedResponse, endpoint, err)
	}
	return nil
}

func classifyStatus(endpoint string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(body))
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s returned %d: %s", catalog.ErrUnauthorized, endpoint, resp.StatusCode, detail)
	}
	return fmt.Errorf("%w: %s returned %d: %s", catalog.ErrUpstream, endpoint, resp.StatusCode, detail)
}

// escalates reports whether a nested request failure must abort the whole call
// instead of being dropped.
func escalates(err error) bool {
	return errors.Is(err, catalog.ErrUnauthorized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   DefaultConcurrency,
		IdleConnTimeout:       90 * time.Second,
	}
}
