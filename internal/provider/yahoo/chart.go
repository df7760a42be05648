package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

type chartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// ChartResult is one symbol of a chart response.
type ChartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Events     events  `json:"events"`
	Indicators struct {
		Quote []struct {
			Open   []decimal.NullDecimal `json:"open"`
			High   []decimal.NullDecimal `json:"high"`
			Low    []decimal.NullDecimal `json:"low"`
			Close  []decimal.NullDecimal `json:"close"`
			Volume []*int64              `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []decimal.NullDecimal `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type events struct {
	Dividends map[string]struct {
		Amount decimal.Decimal `json:"amount"`
		Date   int64           `json:"date"`
	} `json:"dividends"`
	Splits map[string]struct {
		Date        int64           `json:"date"`
		Numerator   decimal.Decimal `json:"numerator"`
		Denominator decimal.Decimal `json:"denominator"`
	} `json:"splits"`
}

// Chart retrieves the chart of one symbol including dividend and split events.
func (c *Client) Chart(ctx context.Context, symbol string, req provider.Request) (*ChartResult, error) {
	query := url.Values{}
	interval := req.Interval
	if interval == "" {
		interval = "1d"
	}
	query.Set("interval", interval)
	query.Set("events", "div,split")
	if req.Start != nil {
		query.Set("period1", strconv.FormatInt(req.Start.Unix(), 10))
		end := time.Now().UTC()
		if req.End != nil {
			// period2 is exclusive
			end = req.End.Add(24 * time.Hour)
		}
		query.Set("period2", strconv.FormatInt(end.Unix(), 10))
	} else {
		query.Set("range", "1y")
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), query.Encode())

	var body chartResponse
	if err := httpx.GetJSON(ctx, c.httpClient, u, c.header, &body); err != nil {
		return nil, err
	}
	if e := body.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(body.Chart.Result) == 0 {
		return nil, httpx.ErrNotFound
	}
	return &body.Chart.Result[0], nil
}

// Bars converts the column oriented chart into ascending bars. Rows without
// a close are skipped.
func (r *ChartResult) Bars() []provider.Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	var adj []decimal.NullDecimal
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	out := make([]provider.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		cl := at(q.Close, i)
		if !cl.Valid {
			continue
		}
		b := provider.Bar{
			Time:     time.Unix(ts, 0).UTC(),
			Open:     at(q.Open, i).Decimal,
			High:     at(q.High, i).Decimal,
			Low:      at(q.Low, i).Decimal,
			Close:    cl.Decimal,
			AdjClose: cl.Decimal,
		}
		if a := at(adj, i); a.Valid {
			b.AdjClose = a.Decimal
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			b.Volume = *q.Volume[i]
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Actions returns dividends and splits, oldest first. Split magnitude is numerator/denominator.
func (r *ChartResult) Actions() []provider.CorporateAction {
	out := make([]provider.CorporateAction, 0, len(r.Events.Dividends)+len(r.Events.Splits))
	for _, d := range r.Events.Dividends {
		out = append(out, provider.CorporateAction{
			Type:      provider.ActionDividend,
			Date:      day(d.Date),
			Magnitude: d.Amount,
		})
	}
	for _, s := range r.Events.Splits {
		if s.Denominator.IsZero() {
			continue
		}
		out = append(out, provider.CorporateAction{
			Type:      provider.ActionSplit,
			Date:      day(s.Date),
			Magnitude: s.Numerator.Div(s.Denominator),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Type < out[j].Type
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func at(s []decimal.NullDecimal, i int) decimal.NullDecimal {
	if i < len(s) {
		return s[i]
	}
	return decimal.NullDecimal{}
}

func day(unix int64) time.Time {
	t := time.Unix(unix, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
