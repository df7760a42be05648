package provider

import (
	"fmt"
	"time"

	"marketdata/internal/normalize"
)

// Request is the provider independent description of what to fetch.
// Use NormalizeRequest to obtain the canonical form.
type Request struct {
	Symbols  []string   `json:"symbols"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Interval string     `json:"interval,omitempty"`
}

// NormalizeRequest trims, upper-cases and de-duplicates symbols (first
// occurrence wins), canonicalizes the interval and snaps the date bounds to
// UTC at the precision the interval implies.
func NormalizeRequest(req Request) Request {
	out := Request{
		Symbols:  normalize.Symbols(req.Symbols),
		Interval: normalize.Interval(req.Interval),
	}
	if req.Start != nil {
		t := normalize.Bound(*req.Start, out.Interval)
		out.Start = &t
	}
	if req.End != nil {
		t := normalize.Bound(*req.End, out.Interval)
		out.End = &t
	}
	return out
}

// Validate enforces the request invariants: at least one symbol and
// Start <= End when both are present.
func (r Request) Validate() error {
	if len(r.Symbols) == 0 {
		return fmt.Errorf("%w: symbol set is empty", ErrInvalidRequest)
	}
	return checkRange(r.Start, r.End)
}

func checkRange(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRequest,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// Prepare validates req and returns its canonical form. The date range is
// checked on the raw bounds as well, since snapping both to the same day
// would hide an inverted range.
func Prepare(req Request) (Request, error) {
	if err := checkRange(req.Start, req.End); err != nil {
		return Request{}, err
	}
	n := NormalizeRequest(req)
	if err := n.Validate(); err != nil {
		return Request{}, err
	}
	return n, nil
}

// Key returns the deterministic cache key of the request for c.
// Logically equivalent requests produce the same key.
func (r Request) Key(c Category) string {
	n := NormalizeRequest(r)
	return normalize.Key(string(c), n.Symbols, n.Start, n.End, n.Interval)
}

// Wants reports whether symbol is part of the request.
func (r Request) Wants(symbol string) bool {
	for _, s := range r.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
