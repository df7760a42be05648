package fmp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"marketdata/internal/credentials"
	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

// Name identifies the provider in the catalog and keys its credential.
const Name = "fmp"

const baseURL = "https://financialmodelingprep.com/api/v3"

// Client is a client for the Financial Modeling Prep API.
type Client struct {
	// keys supplies the API key on every request.
	keys credentials.Source
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient httpx.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// Option is a configuration option for the FMP client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new FMP client reading its key from keys.
func NewClient(keys credentials.Source, options ...Option) *Client {
	c := &Client{
		keys:       keys,
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// errorBody is what FMP answers with (often under status 200) when the key
// is wrong or the plan quota is exhausted.
type errorBody struct {
	Message string `json:"Error Message"`
}

func (e errorBody) err() error {
	switch {
	case e.Message == "":
		return nil
	case strings.Contains(e.Message, "Limit Reach"):
		return fmt.Errorf("%w: %s", provider.ErrUpstreamRateLimited, e.Message)
	case strings.Contains(strings.ToLower(e.Message), "api key"):
		return fmt.Errorf("%w: %s", provider.ErrUnauthorized, e.Message)
	}
	return fmt.Errorf("fmp: %s", e.Message)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	key := ""
	if c.keys != nil {
		key = c.keys.Credential(Name)
	}
	if key == "" {
		return fmt.Errorf("%w: no %s api key", provider.ErrUnauthorized, Name)
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("apikey", key)
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	return httpx.GetJSON(ctx, c.httpClient, u, c.header, out)
}
