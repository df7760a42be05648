package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"marketdata/internal/credentials"
	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

// Name identifies the provider in the catalog and keys its credential.
const Name = "alphavantage"

const baseURL = "https://www.alphavantage.co"

// Client is a client for the Alpha Vantage query API.
type Client struct {
	keys       credentials.Source
	baseURL    string
	httpClient httpx.HTTPClient
	header     http.Header
}

// Option is a configuration option for the Alpha Vantage client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
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

// NewClient creates a new Alpha Vantage client reading its key from keys.
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

// query calls /query and returns the decoded top level object. Alpha Vantage
// reports throttling and bad calls with status 200, so those keys are checked here.
func (c *Client) query(ctx context.Context, params url.Values) (map[string]json.RawMessage, error) {
	key := ""
	if c.keys != nil {
		key = c.keys.Credential(Name)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no %s api key", provider.ErrUnauthorized, Name)
	}
	params.Set("apikey", key)

	var body map[string]json.RawMessage
	u := fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode())
	if err := httpx.GetJSON(ctx, c.httpClient, u, c.header, &body); err != nil {
		return nil, err
	}
	for _, k := range []string{"Note", "Information"} {
		if msg, ok := body[k]; ok {
			return nil, fmt.Errorf("%w: %s", provider.ErrUpstreamRateLimited, unquote(msg))
		}
	}
	if msg, ok := body["Error Message"]; ok {
		return nil, fmt.Errorf("%w: %s", httpx.ErrNotFound, unquote(msg))
	}
	return body, nil
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
