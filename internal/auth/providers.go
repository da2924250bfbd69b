// Package auth supplies bearer tokens for the catalog API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider acquires a fresh bearer token.
type Provider interface {
	Fetch(ctx context.Context) (string, error)
}

// Static always returns the same token.
type Static string

// Fetch implements Provider.
func (s Static) Fetch(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("static token is empty")
	}
	return string(s), nil
}

// DefaultTokenURL is the catalog's OAuth2 token endpoint.
const DefaultTokenURL = "https://accounts.spotify.com/api/token"

// ClientCredentials exchanges a client id and secret for an app token.
type ClientCredentials struct {
	cfg clientcredentials.Config
}

// NewClientCredentials builds a ClientCredentials provider. An empty tokenURL
// uses DefaultTokenURL.
func NewClientCredentials(clientID, clientSecret, tokenURL string, scopes ...string) *ClientCredentials {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &ClientCredentials{cfg: clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}}
}

// Fetch implements Provider.
func (c *ClientCredentials) Fetch(ctx context.Context) (string, error) {
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("exchange client credentials: %w", err)
	}
	return tok.AccessToken, nil
}

var accessTokenPattern = regexp.MustCompile(`"accessToken"\s*:\s*"([^"]+)"`)

// PageScrape loads a web page and extracts the embedded anonymous access token.
type PageScrape struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	transport http.RoundTripper
}

// DefaultScrapeURL is the public web player page carrying an anonymous token.
const DefaultScrapeURL = "https://open.spotify.com"

// NewPageScrape builds a PageScrape provider. An empty pageURL uses DefaultScrapeURL.
func NewPageScrape(pageURL, userAgent string, timeout time.Duration) *PageScrape {
	if pageURL == "" {
		pageURL = DefaultScrapeURL
	}
	return &PageScrape{URL: pageURL, UserAgent: userAgent, Timeout: timeout}
}

// Fetch implements Provider.
func (p *PageScrape) Fetch(ctx context.Context) (string, error) {
	var (
		token    string
		fetchErr error
	)
	collector := p.buildCollector()
	collector.OnResponse(func(r *colly.Response) {
		if m := accessTokenPattern.FindSubmatch(r.Body); m != nil {
			token = string(m[1])
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(p.URL)
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("scrape token canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("scrape token visit: %w", err)
		}
	}
	if fetchErr != nil {
		return "", fmt.Errorf("scrape token response: %w", fetchErr)
	}
	if token == "" {
		return "", errors.New("scrape token: access token not found in page")
	}
	return token, nil
}

func (p *PageScrape) buildCollector() *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if p.UserAgent != "" {
		c.UserAgent = p.UserAgent
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c.SetRequestTimeout(timeout)
	if p.transport != nil {
		c.WithTransport(p.transport)
	}
	return c
}
