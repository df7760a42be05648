package cache

import (
	"context"
	"hash/fnv"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"marketdata/internal/provider"
)

// DefaultTTLs is the freshness window per category.
var DefaultTTLs = map[provider.Category]time.Duration{
	provider.PriceSeries:      24 * time.Hour,
	provider.Fundamentals:     7 * 24 * time.Hour,
	provider.CorporateActions: 30 * 24 * time.Hour,
	provider.MacroSeries:      7 * 24 * time.Hour,
}

// Entry is one cached result.
type Entry struct {
	Key       string            `json:"key"`
	Category  provider.Category `json:"category"`
	Result    *provider.Result  `json:"result"`
	CreatedAt time.Time         `json:"created_at"`
	TTL       time.Duration     `json:"ttl"`
}

// Valid reports whether the entry is still fresh at now.
// The TTL stamped at store time applies, not the current configuration.
func (e Entry) Valid(now time.Time) bool {
	return now.Sub(e.CreatedAt) <= e.TTL
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration { return now.Sub(e.CreatedAt) }

// Backend persists entries. It never decides staleness.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
}

// Scanner is implemented by backends that can enumerate their entries.
// fn returning false stops the scan.
type Scanner interface {
	Scan(ctx context.Context, fn func(Entry) bool) error
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Stores  int64 `json:"stores"`
	Expired int64 `json:"expired"`
	Errors  int64 `json:"errors"`
}

// Cache is a read-through/write-through result cache with per-category TTLs.
type Cache struct {
	backend  Backend
	ttls     map[provider.Category]time.Duration
	disabled bool
	now      func() time.Time
	log      logrus.FieldLogger

	// locks serializes Store with the expiry delete of the same key, so a
	// fresh write is never removed by a reader that saw the old entry.
	locks [lockStripes]sync.Mutex

	hits, misses, stores, expired, errs atomic.Int64
}

const lockStripes = 64

func (c *Cache) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.locks[h.Sum32()%lockStripes]
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend replaces the default in-memory backend.
func WithBackend(b Backend) Option { return func(c *Cache) { c.backend = b } }

// WithTTL overrides the freshness window of one category. d <= 0 is ignored.
func WithTTL(cat provider.Category, d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttls[cat] = d
		}
	}
}

// WithDisabled turns the cache into a pass-through: every lookup misses and
// stores are dropped.
func WithDisabled() Option { return func(c *Cache) { c.disabled = true } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithLogger sets the logger used for backend failures.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Cache) { c.log = l } }

// New returns a Cache backed by memory unless WithBackend is given.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttls: maps.Clone(DefaultTTLs),
		now:  time.Now,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		c.backend = NewMemoryBackend()
	}
	return c
}

// Enabled reports whether the cache serves lookups.
func (c *Cache) Enabled() bool { return !c.disabled }

// TTL returns the freshness window configured for cat.
func (c *Cache) TTL(cat provider.Category) time.Duration { return c.ttls[cat] }

// Lookup returns a fresh cached result for (cat, req). Expired entries are
// deleted on the way out. Backend errors count as a miss.
func (c *Cache) Lookup(ctx context.Context, cat provider.Category, req provider.Request) (*provider.Result, bool) {
	if c.disabled {
		c.misses.Add(1)
		return nil, false
	}
	key := req.Key(cat)
	e, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.errs.Add(1)
		c.log.WithFields(logrus.Fields{"category": cat, "key": key}).WithError(err).Warn("cache lookup failed")
	}
	if err != nil || !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !e.Valid(c.now()) {
		fresh, ok, _, err := c.expire(ctx, key)
		if err != nil {
			c.errs.Add(1)
			c.log.WithFields(logrus.Fields{"category": cat, "key": key}).WithError(err).Warn("cache delete failed")
		}
		if !ok {
			c.misses.Add(1)
			return nil, false
		}
		e = fresh
	}
	c.hits.Add(1)
	return e.Result.Clone(), true
}

// Peek returns the entry for (cat, req) whatever its age. It never deletes.
// Callers use it for an explicit stale read after every provider failed.
func (c *Cache) Peek(ctx context.Context, cat provider.Category, req provider.Request) (*Entry, bool) {
	if c.disabled {
		return nil, false
	}
	e, ok, err := c.backend.Get(ctx, req.Key(cat))
	if err != nil || !ok {
		return nil, false
	}
	e.Result = e.Result.Clone()
	return &e, true
}

// Store overwrites the entry for (cat, req) with res, stamped now with the
// category TTL. Backend errors are logged and otherwise ignored.
func (c *Cache) Store(ctx context.Context, cat provider.Category, req provider.Request, res *provider.Result) {
	if c.disabled || res == nil {
		return
	}
	key := req.Key(cat)
	e := Entry{
		Key:       key,
		Category:  cat,
		Result:    res.Clone(),
		CreatedAt: c.now(),
		TTL:       c.ttls[cat],
	}
	mu := c.lockFor(key)
	mu.Lock()
	err := c.backend.Set(ctx, key, e)
	mu.Unlock()
	if err != nil {
		c.errs.Add(1)
		c.log.WithFields(logrus.Fields{"category": cat, "key": key}).WithError(err).Warn("cache store failed")
		return
	}
	c.stores.Add(1)
}

// Sweep deletes every expired entry and returns how many were removed.
// Backends that cannot enumerate are left alone.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	sc, ok := c.backend.(Scanner)
	if !ok || c.disabled {
		return 0, nil
	}
	now := c.now()
	var stale []string
	err := sc.Scan(ctx, func(e Entry) bool {
		if !e.Valid(now) {
			stale = append(stale, e.Key)
		}
		return ctx.Err() == nil
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range stale {
		_, _, deleted, err := c.expire(ctx, k)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
		}
	}
	return n, nil
}

// expire re-reads key under its lock and deletes it if it is still stale.
// When a concurrent Store made the key fresh again the new entry is
// returned with fresh set and nothing is deleted.
func (c *Cache) expire(ctx context.Context, key string) (e Entry, fresh, deleted bool, err error) {
	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	e, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, false, err
	}
	if e.Valid(c.now()) {
		return e, true, false, nil
	}
	if err := c.backend.Delete(ctx, key); err != nil {
		return Entry{}, false, false, err
	}
	c.expired.Add(1)
	return Entry{}, false, true, nil
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stores:  c.stores.Load(),
		Expired: c.expired.Load(),
		Errors:  c.errs.Load(),
	}
}
