package fmp

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

const dateLayout = "2006-01-02"

type historicalPrice struct {
	Date     string          `json:"date"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	AdjClose decimal.Decimal `json:"adjClose"`
	Volume   decimal.Decimal `json:"volume"`
}

type historicalResponse[T any] struct {
	errorBody
	Symbol     string `json:"symbol"`
	Historical []T    `json:"historical"`
}

// HistoricalPrices returns daily bars for symbol, oldest first.
func (c *Client) HistoricalPrices(ctx context.Context, symbol string, start, end *time.Time) ([]provider.Bar, error) {
	var body historicalResponse[historicalPrice]
	if err := c.get(ctx, "/historical-price-full/"+url.PathEscape(symbol), rangeQuery(start, end), &body); err != nil {
		return nil, err
	}
	if err := body.err(); err != nil {
		return nil, err
	}
	out := make([]provider.Bar, 0, len(body.Historical))
	for _, h := range body.Historical {
		t, err := time.Parse(dateLayout, h.Date)
		if err != nil {
			return nil, fmt.Errorf("decoding date %q: %w", h.Date, err)
		}
		adj := h.AdjClose
		if adj.IsZero() {
			adj = h.Close
		}
		out = append(out, provider.Bar{
			Time: t, Open: h.Open, High: h.High, Low: h.Low, Close: h.Close, AdjClose: adj,
			Volume: h.Volume.IntPart(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

type keyMetricsTTM struct {
	PERatio       decimal.NullDecimal `json:"peRatioTTM"`
	PBRatio       decimal.NullDecimal `json:"pbRatioTTM"`
	ROE           decimal.NullDecimal `json:"roeTTM"`
	DividendYield decimal.NullDecimal `json:"dividendYieldTTM"`
	MarketCap     decimal.NullDecimal `json:"marketCapTTM"`
}

// KeyMetrics returns the trailing twelve month metrics of symbol under the
// common metric names. Missing values are left out.
func (c *Client) KeyMetrics(ctx context.Context, symbol string) (map[string]decimal.Decimal, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/key-metrics-ttm/"+url.PathEscape(symbol), nil, &raw); err != nil {
		return nil, err
	}
	// An error arrives as an object, data as an array.
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if err := eb.err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	var rows []keyMetricsTTM
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	m := rows[0]
	out := map[string]decimal.Decimal{}
	for name, v := range map[string]decimal.NullDecimal{
		provider.MetricPERatio:       m.PERatio,
		provider.MetricPBRatio:       m.PBRatio,
		provider.MetricROE:           m.ROE,
		provider.MetricDividendYield: m.DividendYield,
		provider.MetricMarketCap:     m.MarketCap,
	} {
		if v.Valid {
			out[name] = v.Decimal
		}
	}
	return out, nil
}

type dividend struct {
	Date        string          `json:"date"`
	Dividend    decimal.Decimal `json:"dividend"`
	AdjDividend decimal.Decimal `json:"adjDividend"`
}

type split struct {
	Date        string          `json:"date"`
	Numerator   decimal.Decimal `json:"numerator"`
	Denominator decimal.Decimal `json:"denominator"`
}

// CorporateActions returns dividends and splits of symbol within the range, oldest first.
func (c *Client) CorporateActions(ctx context.Context, symbol string, start, end *time.Time) ([]provider.CorporateAction, error) {
	var divs historicalResponse[dividend]
	if err := c.get(ctx, "/historical-price-full/stock_dividend/"+url.PathEscape(symbol), nil, &divs); err != nil {
		return nil, err
	}
	if err := divs.err(); err != nil {
		return nil, err
	}
	var splits historicalResponse[split]
	if err := c.get(ctx, "/historical-price-full/stock_split/"+url.PathEscape(symbol), nil, &splits); err != nil {
		return nil, err
	}
	if err := splits.err(); err != nil {
		return nil, err
	}

	var out []provider.CorporateAction
	for _, d := range divs.Historical {
		t, err := time.Parse(dateLayout, d.Date)
		if err != nil || !within(t, start, end) {
			continue
		}
		amount := d.Dividend
		if amount.IsZero() {
			amount = d.AdjDividend
		}
		out = append(out, provider.CorporateAction{Type: provider.ActionDividend, Date: t, Magnitude: amount})
	}
	for _, s := range splits.Historical {
		t, err := time.Parse(dateLayout, s.Date)
		if err != nil || !within(t, start, end) || s.Denominator.IsZero() {
			continue
		}
		out = append(out, provider.CorporateAction{Type: provider.ActionSplit, Date: t, Magnitude: s.Numerator.Div(s.Denominator)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Type < out[j].Type
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func rangeQuery(start, end *time.Time) url.Values {
	q := url.Values{}
	if start != nil {
		q.Set("from", start.Format(dateLayout))
	}
	if end != nil {
		q.Set("to", end.Format(dateLayout))
	}
	return q
}

func within(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}
