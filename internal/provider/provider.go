package provider

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Category identifies one of the kinds of financial data a provider can serve.
type Category string

const (
	PriceSeries      Category = "price_series"
	Fundamentals     Category = "fundamentals"
	CorporateActions Category = "corporate_actions"
	MacroSeries      Category = "macro_series"
)

// Categories lists every category in a stable order.
var Categories = []Category{PriceSeries, Fundamentals, CorporateActions, MacroSeries}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case PriceSeries, Fundamentals, CorporateActions, MacroSeries:
		return true
	}
	return false
}

// ParseCategory maps a user supplied name onto a Category.
// Short aliases ("prices", "macro", ...) are accepted.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "price_series", "prices", "price", "ohlcv":
		return PriceSeries, nil
	case "fundamentals", "fundamental":
		return Fundamentals, nil
	case "corporate_actions", "actions", "corporate-actions":
		return CorporateActions, nil
	case "macro_series", "macro":
		return MacroSeries, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

var (
	// ErrInvalidRequest is returned for malformed requests (empty symbol set,
	// inverted date range, unknown category). It is never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyResult is returned by adapters when none of the requested
	// symbols produced any data.
	ErrEmptyResult = errors.New("empty result")

	// ErrUpstreamRateLimited is returned by adapters when the upstream answered
	// with a rate limit response (HTTP 429 or an equivalent payload).
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrUnauthorized is returned by adapters when the upstream rejected the credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// Adapter serves one category for one provider.
// Implementations must not retry: one call either returns a result or fails once.
// The deadline of ctx bounds the transport call.
//
//go:generate mockgen -package=providermock -destination=providermock/mock_adapter.go -source=provider.go Adapter
type Adapter interface {
	Call(ctx context.Context, req Request) (*Result, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, req Request) (*Result, error)

// Call implements Adapter.
func (f AdapterFunc) Call(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }

// Descriptor is the static description of a data provider.
type Descriptor struct {
	// Name identifies the provider and keys its credential.
	Name string
	// Priorities holds the rank per supported category; lower is tried first.
	Priorities map[Category]int
	// RequiresCredential excludes the provider from chains while no credential is configured.
	RequiresCredential bool
	// RequestsPerMinute caps upstream calls; 0 means unlimited.
	RequestsPerMinute int
	// Adapters holds the adapter per supported category.
	Adapters map[Category]Adapter
}

// Supports reports whether the provider declared a priority for c.
func (d Descriptor) Supports(c Category) bool {
	_, ok := d.Priorities[c]
	return ok
}

// Priority returns the rank of the provider for c.
func (d Descriptor) Priority(c Category) int { return d.Priorities[c] }

// Adapter returns the adapter serving c, or nil.
func (d Descriptor) Adapter(c Category) Adapter { return d.Adapters[c] }

// Bar is a single OHLCV record.
type Bar struct {
	Time     time.Time       `json:"time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	AdjClose decimal.Decimal `json:"adj_close"`
	Volume   int64           `json:"volume"`
}

// ActionType classifies a corporate action.
type ActionType string

const (
	ActionDividend ActionType = "dividend"
	ActionSplit    ActionType = "split"
)

// CorporateAction is a dividend (magnitude = amount per share) or a split
// (magnitude = new shares per old share).
type CorporateAction struct {
	Type      ActionType      `json:"type"`
	Date      time.Time       `json:"date"`
	Magnitude decimal.Decimal `json:"magnitude"`
}

// Observation is a single dated macro value.
type Observation struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Common fundamentals metric names. Adapters map their native fields onto these.
const (
	MetricPERatio       = "pe_ratio"
	MetricPBRatio       = "pb_ratio"
	MetricROE           = "roe"
	MetricDividendYield = "dividend_yield"
	MetricMarketCap     = "market_cap"
)

// Payload is the category specific data for one symbol.
// Exactly one field is populated, matching the result category.
type Payload struct {
	Bars         []Bar                      `json:"bars,omitempty"`
	Metrics      map[string]decimal.Decimal `json:"metrics,omitempty"`
	Actions      []CorporateAction          `json:"actions,omitempty"`
	Observations []Observation              `json:"observations,omitempty"`
}

// Empty reports whether the payload carries no data.
func (p Payload) Empty() bool {
	return len(p.Bars) == 0 && len(p.Metrics) == 0 && len(p.Actions) == 0 && len(p.Observations) == 0
}

// Clone returns a payload that shares no container with p.
func (p Payload) Clone() Payload {
	return Payload{
		Bars:         slices.Clone(p.Bars),
		Metrics:      maps.Clone(p.Metrics),
		Actions:      slices.Clone(p.Actions),
		Observations: slices.Clone(p.Observations),
	}
}

// Result is the normalized shape returned for every request regardless of
// which provider served it.
type Result struct {
	Category  Category           `json:"category"`
	Data      map[string]Payload `json:"data"`
	Provider  string             `json:"provider"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// NewResult returns an empty result for c.
func NewResult(c Category) *Result {
	return &Result{Category: c, Data: map[string]Payload{}}
}

// Clone returns a deep copy of r. A nil result clones to nil.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Data = make(map[string]Payload, len(r.Data))
	for sym, p := range r.Data {
		out.Data[sym] = p.Clone()
	}
	return &out
}

// Symbols returns the symbols present in the result, in req order.
func (r *Result) Symbols(req Request) []string {
	out := make([]string, 0, len(r.Data))
	for _, s := range req.Symbols {
		if _, ok := r.Data[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
