// Package nasdaqdl reads time series datasets from Nasdaq Data Link, the
// former Quandl API. Symbols are dataset codes such as "FRED/GDP".
package nasdaqdl

import (
	"context"
	"encoding/json"
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
const Name = "nasdaqdl"

const baseURL = "https://data.nasdaq.com/api/v3"

const dateLayout = "2006-01-02"

// Client is a client for the Nasdaq Data Link datasets API.
type Client struct {
	keys       credentials.Source
	baseURL    string
	httpClient httpx.HTTPClient
	header     http.Header
}

// Option is a configuration option for the Nasdaq Data Link client.
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

// NewClient creates a new Nasdaq Data Link client reading its key from keys.
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

type datasetResponse struct {
	DatasetData struct {
		ColumnNames []string            `json:"column_names"`
		Data        [][]json.RawMessage `json:"data"`
	} `json:"dataset_data"`
}

// Dataset returns the first value column of dataset code, oldest first.
func (c *Client) Dataset(ctx context.Context, code string, start, end *time.Time) ([]provider.Observation, error) {
	key := ""
	if c.keys != nil {
		key = c.keys.Credential(Name)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no %s api key", provider.ErrUnauthorized, Name)
	}

	query := url.Values{}
	query.Set("api_key", key)
	if start != nil {
		query.Set("start_date", start.Format(dateLayout))
	}
	if end != nil {
		query.Set("end_date", end.Format(dateLayout))
	}

	var body datasetResponse
	u := fmt.Sprintf("%s/datasets/%s/data.json?%s", c.baseURL, escapeCode(code), query.Encode())
	if err := httpx.GetJSON(ctx, c.httpClient, u, c.header, &body); err != nil {
		return nil, err
	}

	out := make([]provider.Observation, 0, len(body.DatasetData.Data))
	for _, row := range body.DatasetData.Data {
		if len(row) < 2 {
			continue
		}
		var date string
		if err := json.Unmarshal(row[0], &date); err != nil {
			return nil, fmt.Errorf("decoding date: %w", err)
		}
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("decoding date %q: %w", date, err)
		}
		var v decimal.NullDecimal
		if err := json.Unmarshal(row[1], &v); err != nil {
			return nil, fmt.Errorf("decoding value: %w", err)
		}
		if !v.Valid {
			continue
		}
		out = append(out, provider.Observation{Date: t, Value: v.Decimal})
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
		obs, err := c.Dataset(ctx, sym, req.Start, req.End)
		if errors.Is(err, httpx.ErrNotFound) {
			err = nil
		}
		return provider.Payload{Observations: obs}, err
	})
}

func escapeCode(code string) string {
	parts := strings.Split(code, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
