package alphavantage

import (
	"context"
	"errors"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

// Adapters returns the adapters Alpha Vantage serves.
func (c *Client) Adapters() map[provider.Category]provider.Adapter {
	return map[provider.Category]provider.Adapter{
		provider.PriceSeries:  provider.AdapterFunc(c.prices),
		provider.Fundamentals: provider.AdapterFunc(c.fundamentals),
	}
}

func (c *Client) prices(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.PriceSeries, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		bars, err := c.TimeSeries(ctx, sym, req)
		if errors.Is(err, httpx.ErrNotFound) {
			err = nil
		}
		return provider.Payload{Bars: bars}, err
	})
}

func (c *Client) fundamentals(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.Fundamentals, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		m, err := c.Overview(ctx, sym)
		if errors.Is(err, httpx.ErrNotFound) {
			err = nil
		}
		return provider.Payload{Metrics: m}, err
	})
}
