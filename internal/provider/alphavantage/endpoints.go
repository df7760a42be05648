package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/provider"
)

// compactDays is roughly how far back the 100 point compact output reaches.
const compactDays = 140

type series struct {
	function string
	key      string
}

var seriesByInterval = map[string]series{
	"":    {"TIME_SERIES_DAILY", "Time Series (Daily)"},
	"1d":  {"TIME_SERIES_DAILY", "Time Series (Daily)"},
	"1wk": {"TIME_SERIES_WEEKLY", "Weekly Time Series"},
	"1mo": {"TIME_SERIES_MONTHLY", "Monthly Time Series"},
}

type ohlcv struct {
	Open   decimal.Decimal `json:"1. open"`
	High   decimal.Decimal `json:"2. high"`
	Low    decimal.Decimal `json:"3. low"`
	Close  decimal.Decimal `json:"4. close"`
	Volume decimal.Decimal `json:"5. volume"`
}

// TimeSeries returns bars of symbol for a daily, weekly or monthly interval, oldest first.
func (c *Client) TimeSeries(ctx context.Context, symbol string, req provider.Request) ([]provider.Bar, error) {
	s, ok := seriesByInterval[req.Interval]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", req.Interval)
	}
	params := url.Values{}
	params.Set("function", s.function)
	params.Set("symbol", symbol)
	if s.function == "TIME_SERIES_DAILY" {
		params.Set("outputsize", "compact")
		if req.Start != nil && time.Since(*req.Start) > compactDays*24*time.Hour {
			params.Set("outputsize", "full")
		}
	}

	body, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	raw, ok := body[s.key]
	if !ok {
		return nil, nil
	}
	var rows map[string]ohlcv
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.key, err)
	}

	out := make([]provider.Bar, 0, len(rows))
	for date, r := range rows {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("decoding date %q: %w", date, err)
		}
		if (req.Start != nil && t.Before(*req.Start)) || (req.End != nil && t.After(*req.End)) {
			continue
		}
		out = append(out, provider.Bar{
			Time: t, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, AdjClose: r.Close,
			Volume: r.Volume.IntPart(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

var overviewFields = map[string]string{
	"PERatio":              provider.MetricPERatio,
	"PriceToBookRatio":     provider.MetricPBRatio,
	"ReturnOnEquityTTM":    provider.MetricROE,
	"DividendYield":        provider.MetricDividendYield,
	"MarketCapitalization": provider.MetricMarketCap,
}

// Overview returns the company overview metrics of symbol under the common
// metric names. Placeholders such as "None" or "-" are left out.
func (c *Client) Overview(ctx context.Context, symbol string) (map[string]decimal.Decimal, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)

	body, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	out := map[string]decimal.Decimal{}
	for field, name := range overviewFields {
		raw, ok := body[field]
		if !ok {
			continue
		}
		v, err := decimal.NewFromString(unquote(raw))
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out, nil
}
