package fred

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/credentials"
	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

// Name identifies the provider in the catalog and keys its credential.
const Name = "fred"

const baseURL = "https://api.stlouisfed.org/fred"

const dateLayout = "2006-01-02"

// Client is a client for the FRED series API.
type Client struct {
	keys       credentials.Source
	baseURL    string
	httpClient httpx.HTTPClient
	header     http.Header
}

// Option is a configuration option for the FRED client.
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

// NewClient creates a new FRED client reading its key from keys.
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

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Observations returns the observations of a series, oldest first.
// FRED marks missing values with "."; those are skipped.
func (c *Client) Observations(ctx context.Context, seriesID string, start, end *time.Time) ([]provider.Observation, error) {
	key := ""
	if c.keys != nil {
		key = c.keys.Credential(Name)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no %s api key", provider.ErrUnauthorized, Name)
	}

	query := url.Values{}
	query.Set("series_id", seriesID)
	query.Set("api_key", key)
	query.Set("file_type", "json")
	if start != nil {
		query.Set("observation_start", start.Format(dateLayout))
	}
	if end != nil {
		query.Set("observation_end", end.Format(dateLayout))
	}

	var body observationsResponse
	u := fmt.Sprintf("%s/series/observations?%s", c.baseURL, query.Encode())
	if err := httpx.GetJSON(ctx, c.httpClient, u, c.header, &body); err != nil {
		return nil, err
	}

	out := make([]provider.Observation, 0, len(body.Observations))
	for _, o := range body.Observations {
		if o.Value == "." || o.Value == "" {
			continue
		}
		t, err := time.Parse(dateLayout, o.Date)
		if err != nil {
			return nil, fmt.Errorf("decoding date %q: %w", o.Date, err)
		}
		v, err := decimal.NewFromString(o.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding value %q: %w", o.Value, err)
		}
		out = append(out, provider.Observation{Date: t, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Adapters returns the macro series adapter.
func (c *Client) Adapters() map[provider.Category]provider.Adapter {
	return map[provider.Category]provider.Adapter{
		provider.MacroSeries: provider.AdapterFunc(c.macro),
	}
}

func (c *Client) macro(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.MacroSeries, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		obs, err := c.Observations(ctx, sym, req.Start, req.End)
		if errors.Is(err, httpx.ErrNotFound) {
			err = nil
		}
		return provider.Payload{Observations: obs}, err
	})
}
