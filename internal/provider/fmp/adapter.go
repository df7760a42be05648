package fmp

import (
	"context"
	"errors"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

// Adapters returns the adapters FMP serves.
func (c *Client) Adapters() map[provider.Category]provider.Adapter {
	return map[provider.Category]provider.Adapter{
		provider.PriceSeries:      provider.AdapterFunc(c.prices),
		provider.Fundamentals:     provider.AdapterFunc(c.fundamentals),
		provider.CorporateActions: provider.AdapterFunc(c.corporateActions),
	}
}

func (c *Client) prices(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.PriceSeries, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		bars, err := c.HistoricalPrices(ctx, sym, req.Start, req.End)
		return provider.Payload{Bars: bars}, notFoundIsEmpty(err)
	})
}

func (c *Client) fundamentals(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.Fundamentals, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		m, err := c.KeyMetrics(ctx, sym)
		return provider.Payload{Metrics: m}, notFoundIsEmpty(err)
	})
}

func (c *Client) corporateActions(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.CorporateActions, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		actions, err := c.CorporateActions(ctx, sym, req.Start, req.End)
		return provider.Payload{Actions: actions}, notFoundIsEmpty(err)
	})
}

func notFoundIsEmpty(err error) error {
	if errors.Is(err, httpx.ErrNotFound) {
		return nil
	}
	return err
}
