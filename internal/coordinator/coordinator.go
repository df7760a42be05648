package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"marketdata/internal/provider"
)

// DefaultTimeout bounds a single adapter call.
const DefaultTimeout = 5 * time.Second

// Chains yields the ranked, enabled providers of a category.
type Chains interface {
	ProvidersFor(c provider.Category) []provider.Descriptor
}

// ResultCache is the read-through/write-through cache used by Fetch.
type ResultCache interface {
	Lookup(ctx context.Context, c provider.Category, req provider.Request) (*provider.Result, bool)
	Store(ctx context.Context, c provider.Category, req provider.Request, res *provider.Result)
}

// Limiter decides whether a provider may be called right now.
type Limiter interface {
	Allow(providerName string) bool
}

// Coordinator walks the fallback chain of a category until one provider
// answers.
type Coordinator struct {
	chains  Chains
	cache   ResultCache
	limits  Limiter
	timeout time.Duration
	now     func() time.Time
	log     logrus.FieldLogger

	flight singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the per adapter call timeout. d <= 0 is ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Coordinator) { c.log = l } }

// WithClock sets the time source used for attempt durations and fetch times.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// New returns a Coordinator. cache and limits may be nil.
func New(chains Chains, cache ResultCache, limits Limiter, opts ...Option) *Coordinator {
	c := &Coordinator{
		chains:  chains,
		cache:   cache,
		limits:  limits,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the normalized result of req for category cat.
//
// A fresh cache entry is returned without contacting any provider. Otherwise
// providers are tried in chain order; the first success is cached and
// returned. Errors: provider.ErrInvalidRequest, ErrNoProviderAvailable,
// ErrCancelled (wrapping the context error) or *AllProvidersFailedError.
func (c *Coordinator) Fetch(ctx context.Context, cat provider.Category, req provider.Request) (*provider.Result, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", provider.ErrInvalidRequest, cat)
	}
	req, err := provider.Prepare(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	log := c.log.WithFields(logrus.Fields{
		"fetch_id": uuid.NewString(),
		"category": cat,
		"symbols":  req.Symbols,
	})

	if c.cache != nil {
		if res, ok := c.cache.Lookup(ctx, cat, req); ok {
			log.WithField("provider", res.Provider).Debug("cache hit")
			return res, nil
		}
	}

	ch := c.flight.DoChan(req.Key(cat), func() (any, error) {
		return c.walk(ctx, log, cat, req)
	})
	select {
	case <-ctx.Done():
		return nil, cancelled(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			// The leader was cancelled by its own caller; this caller is still live.
			if r.Shared && errors.Is(r.Err, ErrCancelled) && ctx.Err() == nil {
				log.Debug("shared fetch cancelled, retrying alone")
				return c.walk(ctx, log, cat, req)
			}
			return nil, r.Err
		}
		return r.Val.(*provider.Result).Clone(), nil
	}
}

func (c *Coordinator) walk(ctx context.Context, log logrus.FieldLogger, cat provider.Category, req provider.Request) (*provider.Result, error) {
	chain := c.chains.ProvidersFor(cat)
	if len(chain) == 0 {
		log.Warn("no provider available")
		return nil, fmt.Errorf("%w for %s", ErrNoProviderAvailable, cat)
	}

	attempts := make([]Attempt, 0, len(chain))
	for _, d := range chain {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		plog := log.WithField("provider", d.Name)

		if c.limits != nil && !c.limits.Allow(d.Name) {
			attempts = append(attempts, Attempt{Provider: d.Name, Category: cat, Outcome: OutcomeRateLimited, Err: ErrRateLimited})
			plog.WithField("outcome", OutcomeRateLimited).Warn("provider skipped")
			continue
		}

		started := c.now()
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := d.Adapter(cat).Call(callCtx, req)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()
		took := c.now().Sub(started)

		// Caller cancellation wins over whatever the adapter reported and
		// nothing is cached.
		if ctxErr := ctx.Err(); ctxErr != nil {
			plog.WithError(err).Info("fetch cancelled")
			return nil, cancelled(ctxErr)
		}

		if err == nil {
			if res = c.accept(res, d.Name, cat, req); res == nil {
				err = provider.ErrEmptyResult
			}
		}
		if err == nil {
			if c.cache != nil {
				c.cache.Store(ctx, cat, req, res)
			}
			plog.WithFields(logrus.Fields{
				"outcome":     OutcomeSuccess,
				"duration":    took,
				"served":      len(res.Data),
				"prior_fails": len(attempts),
			}).Info("fetch served")
			return res, nil
		}

		a := Attempt{Provider: d.Name, Category: cat, Outcome: classify(err, timedOut), Err: err, Duration: took}
		attempts = append(attempts, a)
		plog.WithFields(logrus.Fields{
			"outcome":  a.Outcome,
			"duration": took,
		}).WithError(err).Warn("provider attempt failed")
	}

	log.WithField("attempts", len(attempts)).Error("all providers failed")
	return nil, &AllProvidersFailedError{Category: cat, Attempts: attempts}
}

// accept keeps only requested, non-empty payloads and stamps provenance.
// It returns nil when nothing is left.
func (c *Coordinator) accept(res *provider.Result, name string, cat provider.Category, req provider.Request) *provider.Result {
	if res == nil {
		return nil
	}
	out := &provider.Result{
		Category:  cat,
		Data:      make(map[string]provider.Payload, len(res.Data)),
		Provider:  name,
		FetchedAt: c.now().UTC(),
	}
	for sym, p := range res.Data {
		if req.Wants(sym) && !p.Empty() {
			out.Data[sym] = p.Clone()
		}
	}
	if len(out.Data) == 0 {
		return nil
	}
	return out
}

func classify(err error, timedOut bool) Outcome {
	switch {
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, provider.ErrUpstreamRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeProviderError
	}
}

// FetchPrices fetches OHLCV bars.
func (c *Coordinator) FetchPrices(ctx context.Context, symbols []string, start, end *time.Time, interval string) (*provider.Result, error) {
	return c.Fetch(ctx, provider.PriceSeries, provider.Request{Symbols: symbols, Start: start, End: end, Interval: interval})
}

// FetchFundamentals fetches the latest fundamentals metrics.
func (c *Coordinator) FetchFundamentals(ctx context.Context, symbols []string) (*provider.Result, error) {
	return c.Fetch(ctx, provider.Fundamentals, provider.Request{Symbols: symbols})
}

// FetchCorporateActions fetches dividends and splits.
func (c *Coordinator) FetchCorporateActions(ctx context.Context, symbols []string, start, end *time.Time) (*provider.Result, error) {
	return c.Fetch(ctx, provider.CorporateActions, provider.Request{Symbols: symbols, Start: start, End: end})
}

// FetchMacro fetches macro indicator series by series id.
func (c *Coordinator) FetchMacro(ctx context.Context, series []string, start, end *time.Time) (*provider.Result, error) {
	return c.Fetch(ctx, provider.MacroSeries, provider.Request{Symbols: series, Start: start, End: end})
}
