package yahoo

import (
	"context"
	"errors"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

// Adapters returns the adapters Yahoo serves: price bars and corporate actions.
func (c *Client) Adapters() map[provider.Category]provider.Adapter {
	return map[provider.Category]provider.Adapter{
		provider.PriceSeries:      provider.AdapterFunc(c.prices),
		provider.CorporateActions: provider.AdapterFunc(c.corporateActions),
	}
}

func (c *Client) prices(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.PriceSeries, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		chart, err := c.Chart(ctx, sym, req)
		if errors.Is(err, httpx.ErrNotFound) {
			return provider.Payload{}, nil
		}
		if err != nil {
			return provider.Payload{}, err
		}
		return provider.Payload{Bars: chart.Bars()}, nil
	})
}

func (c *Client) corporateActions(ctx context.Context, req provider.Request) (*provider.Result, error) {
	return provider.Collect(ctx, provider.CorporateActions, req, func(ctx context.Context, sym string) (provider.Payload, error) {
		chart, err := c.Chart(ctx, sym, req)
		if errors.Is(err, httpx.ErrNotFound) {
			return provider.Payload{}, nil
		}
		if err != nil {
			return provider.Payload{}, err
		}
		return provider.Payload{Actions: chart.Actions()}, nil
	})
}
