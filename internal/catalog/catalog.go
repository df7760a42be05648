// Package catalog assembles the provider catalog, cache, rate limiters and
// coordinator from configuration.
package catalog

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"marketdata/internal/config"
	"marketdata/internal/coordinator"
	"marketdata/internal/credentials"
	"marketdata/internal/httpx"
	"marketdata/internal/provider"
	"marketdata/internal/provider/alphavantage"
	"marketdata/internal/provider/cache"
	"marketdata/internal/provider/fmp"
	"marketdata/internal/provider/fred"
	"marketdata/internal/provider/nasdaqdl"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/provider/yahoo"
	"marketdata/internal/registry"
)

// builder constructs the adapters of one provider.
type builder func(keys credentials.Source, baseURL string, hc httpx.HTTPClient) map[provider.Category]provider.Adapter

type entry struct {
	name       string
	credential bool
	rpm        int
	priorities map[provider.Category]int
	build      builder
}

// defaults is the built-in catalog in declaration order.
var defaults = []entry{
	{
		name: yahoo.Name,
		rpm:  60,
		priorities: map[provider.Category]int{
			provider.PriceSeries:      0,
			provider.CorporateActions: 0,
		},
		build: func(_ credentials.Source, baseURL string, hc httpx.HTTPClient) map[provider.Category]provider.Adapter {
			return yahoo.NewClient(yahoo.WithBaseURL(baseURL), yahoo.WithHTTPClient(hc)).Adapters()
		},
	},
	{
		name:       fmp.Name,
		credential: true,
		rpm:        10,
		priorities: map[provider.Category]int{
			provider.PriceSeries:      1,
			provider.Fundamentals:     0,
			provider.CorporateActions: 1,
		},
		build: func(keys credentials.Source, baseURL string, hc httpx.HTTPClient) map[provider.Category]provider.Adapter {
			return fmp.NewClient(keys, fmp.WithBaseURL(baseURL), fmp.WithHTTPClient(hc)).Adapters()
		},
	},
	{
		name:       alphavantage.Name,
		credential: true,
		rpm:        5,
		priorities: map[provider.Category]int{
			provider.PriceSeries:  2,
			provider.Fundamentals: 1,
		},
		build: func(keys credentials.Source, baseURL string, hc httpx.HTTPClient) map[provider.Category]provider.Adapter {
			return alphavantage.NewClient(keys, alphavantage.WithBaseURL(baseURL), alphavantage.WithHTTPClient(hc)).Adapters()
		},
	},
	{
		name:       fred.Name,
		credential: true,
		rpm:        120,
		priorities: map[provider.Category]int{provider.MacroSeries: 0},
		build: func(keys credentials.Source, baseURL string, hc httpx.HTTPClient) map[provider.Category]provider.Adapter {
			return fred.NewClient(keys, fred.WithBaseURL(baseURL), fred.WithHTTPClient(hc)).Adapters()
		},
	},
	{
		name:       nasdaqdl.Name,
		credential: true,
		rpm:        30,
		priorities: map[provider.Category]int{provider.MacroSeries: 1},
		build: func(keys credentials.Source, baseURL string, hc httpx.HTTPClient) map[provider.Category]provider.Adapter {
			return nasdaqdl.NewClient(keys, nasdaqdl.WithBaseURL(baseURL), nasdaqdl.WithHTTPClient(hc)).Adapters()
		},
	},
}

// Names returns the built-in provider names in declaration order.
func Names() []string {
	out := make([]string, len(defaults))
	for i, e := range defaults {
		out[i] = e.name
	}
	return out
}

type options struct {
	httpClient httpx.HTTPClient
	now        func() time.Time
	log        logrus.FieldLogger
}

// Option configures Open and Descriptors.
type Option func(*options)

// WithHTTPClient makes every provider share hc instead of owning a tuned client.
func WithHTTPClient(hc httpx.HTTPClient) Option { return func(o *options) { o.httpClient = hc } }

// WithClock sets the time source of the cache, limiters and coordinator.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger sets the logger handed to the cache and the coordinator.
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

func collect(opts []Option) options {
	o := options{now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Descriptors builds the descriptor of every enabled provider, applying the
// rpm, base URL and priority overrides of cfg. Providers switched off in
// cfg are left out. An override naming an unknown provider is an error.
func Descriptors(cfg *config.Config, keys credentials.Source, opts ...Option) ([]provider.Descriptor, error) {
	o := collect(opts)

	known := make(map[string]struct{}, len(defaults))
	for _, e := range defaults {
		known[e.name] = struct{}{}
	}
	unknown := make([]string, 0)
	for name := range cfg.Providers {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown providers %v", registry.ErrInvalidCatalog, unknown)
	}

	out := make([]provider.Descriptor, 0, len(defaults))
	for _, e := range defaults {
		pc, configured := cfg.Providers[e.name]
		if configured && !pc.Enabled {
			continue
		}

		rpm := e.rpm
		if configured {
			rpm = pc.RequestsPerMinute
		}
		priorities := make(map[provider.Category]int, len(e.priorities))
		for c, p := range e.priorities {
			priorities[c] = p
		}
		for name, p := range pc.Priorities {
			c, err := provider.ParseCategory(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", registry.ErrInvalidCatalog, e.name, err)
			}
			priorities[c] = p
		}

		hc := o.httpClient
		if hc == nil {
			hc = httpx.New(30 * time.Second)
		}
		out = append(out, provider.Descriptor{
			Name:               e.name,
			Priorities:         priorities,
			RequiresCredential: e.credential,
			RequestsPerMinute:  rpm,
			Adapters:           e.build(keys, pc.BaseURL, hc),
		})
	}
	return out, nil
}

// Runtime is the assembled retrieval core.
type Runtime struct {
	Credentials *credentials.Store
	Validator   *credentials.Validator
	Registry    *registry.Registry
	Cache       *cache.Cache
	Limits      *ratelimit.Set
	Coordinator *coordinator.Coordinator

	closers []io.Closer
}

// Open builds a Runtime from cfg. The Redis backend is dialed with ctx.
// Every error is a configuration problem and must stop initialization.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := collect(opts)

	rt := &Runtime{Credentials: credentials.NewStore(cfg.Credentials())}
	rt.Validator = credentials.NewValidator(rt.Credentials)

	descriptors, err := Descriptors(cfg, rt.Credentials, opts...)
	if err != nil {
		return nil, err
	}
	if rt.Registry, err = registry.New(rt.Validator, descriptors); err != nil {
		return nil, err
	}

	mode, err := ratelimit.ParseMode(cfg.RateLimit.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	rt.Limits = ratelimit.NewSet(mode, o.now, descriptors...)

	backend, err := rt.openBackend(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	cacheOpts := []cache.Option{cache.WithBackend(backend), cache.WithClock(o.now), cache.WithLogger(o.log)}
	for c, d := range cfg.TTLs() {
		cacheOpts = append(cacheOpts, cache.WithTTL(c, d))
	}
	if !cfg.Cache.Enabled {
		cacheOpts = append(cacheOpts, cache.WithDisabled())
	}
	rt.Cache = cache.New(cacheOpts...)

	rt.Coordinator = coordinator.New(rt.Registry, rt.Cache, rt.Limits,
		coordinator.WithTimeout(cfg.Fetch.Timeout),
		coordinator.WithClock(o.now),
		coordinator.WithLogger(o.log),
	)

	if missing := rt.Validator.Missing(rt.Registry.Providers()); len(missing) > 0 {
		o.log.WithField("providers", missing).Warn("providers disabled: missing credentials")
	}
	return rt, nil
}

func (rt *Runtime) openBackend(ctx context.Context, cfg config.Cache) (cache.Backend, error) {
	switch cfg.Backend {
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		b := cache.NewRedisBackend(client, cfg.Redis.Prefix)
		rt.closers = append(rt.closers, b)
		return b, nil
	case "sqlite":
		b, err := cache.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, b)
		return b, nil
	case "", "memory":
		return cache.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("%w: cache.backend %q", config.ErrInvalidConfig, cfg.Backend)
}

// Reload swaps in the credentials of cfg. Chains pick them up on the next
// fetch; everything else is fixed at Open.
func (rt *Runtime) Reload(cfg *config.Config) {
	rt.Credentials.Reload(cfg.Credentials())
}

// Close releases the cache backend.
func (rt *Runtime) Close() error {
	var first error
	for _, c := range rt.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}
