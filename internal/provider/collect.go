package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SymbolFetcher fetches the payload of a single symbol.
type SymbolFetcher func(ctx context.Context, symbol string) (Payload, error)

// Collect runs fetch once per requested symbol and assembles a Result.
//
// Rate limit, credential and context errors abort the whole call. Other
// per-symbol failures drop that symbol; if no symbol produced data the last
// failure is returned, or ErrEmptyResult when every symbol was simply empty.
func Collect(ctx context.Context, c Category, req Request, fetch SymbolFetcher) (*Result, error) {
	res := NewResult(c)
	var lastErr error
	for _, sym := range req.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := fetch(ctx, sym)
		switch {
		case err == nil:
		case Fatal(ctx, err):
			return nil, fmt.Errorf("%s: %w", sym, err)
		default:
			lastErr = fmt.Errorf("%s: %w", sym, err)
			continue
		}
		if !p.Empty() {
			res.Data[sym] = p
		}
	}
	if len(res.Data) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrEmptyResult
	}
	res.FetchedAt = time.Now().UTC()
	return res, nil
}

// Fatal reports whether err ends the whole adapter call rather than one symbol.
func Fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrUpstreamRateLimited) ||
		errors.Is(err, ErrUnauthorized)
}
