package registry

import (
	"errors"
	"fmt"
	"sort"

	"marketdata/internal/provider"
)

// ErrInvalidCatalog wraps every configuration invariant violation found by New.
// It is fatal: callers must stop initialization.
var ErrInvalidCatalog = errors.New("invalid provider catalog")

// Checker decides whether a provider is currently usable.
type Checker interface {
	IsEnabled(d provider.Descriptor) bool
}

// Registry is the immutable catalog of providers.
type Registry struct {
	providers []provider.Descriptor
	checker   Checker
}

// Option configures New.
type Option func(*options)

type options struct {
	allowTies bool
}

// AllowPriorityTies disables the unique (category, priority) check.
// Ties then resolve by declaration order.
func AllowPriorityTies() Option {
	return func(o *options) { o.allowTies = true }
}

// New validates and freezes the catalog. Declaration order is preserved and
// used as tie-break when ranking.
func New(checker Checker, descriptors []provider.Descriptor, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	names := make(map[string]struct{}, len(descriptors))
	type slot struct {
		category provider.Category
		priority int
	}
	owners := make(map[slot]string)

	out := make([]provider.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: provider without name", ErrInvalidCatalog)
		}
		if _, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("%w: provider %q declared twice", ErrInvalidCatalog, d.Name)
		}
		names[d.Name] = struct{}{}

		if d.RequestsPerMinute < 0 {
			return nil, fmt.Errorf("%w: provider %q has negative rate limit", ErrInvalidCatalog, d.Name)
		}

		for _, c := range provider.Categories {
			if !d.Supports(c) {
				continue
			}
			if d.Adapter(c) == nil {
				return nil, fmt.Errorf("%w: provider %q supports %s without an adapter", ErrInvalidCatalog, d.Name, c)
			}
			s := slot{category: c, priority: d.Priority(c)}
			if owner, taken := owners[s]; taken && !o.allowTies {
				return nil, fmt.Errorf("%w: providers %q and %q share priority %d for %s",
					ErrInvalidCatalog, owner, d.Name, s.priority, c)
			}
			owners[s] = d.Name
		}
		for c := range d.Priorities {
			if !c.Valid() {
				return nil, fmt.Errorf("%w: provider %q declares unknown category %q", ErrInvalidCatalog, d.Name, c)
			}
		}
		out = append(out, d)
	}

	return &Registry{providers: out, checker: checker}, nil
}

// ProvidersFor returns the enabled providers supporting c, ranked ascending
// by priority. Credentials are re-checked on every call.
func (r *Registry) ProvidersFor(c provider.Category) []provider.Descriptor {
	out := make([]provider.Descriptor, 0, len(r.providers))
	for _, d := range r.supporting(c) {
		if r.enabled(d) {
			out = append(out, d)
		}
	}
	return out
}

// ChainEntry is a supporting provider together with its computed state.
type ChainEntry struct {
	Name               string `json:"name" yaml:"name"`
	Priority           int    `json:"priority" yaml:"priority"`
	RequiresCredential bool   `json:"requires_credential" yaml:"requires_credential"`
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	RequestsPerMinute  int    `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// Chain returns every provider supporting c, ranked, including disabled ones.
func (r *Registry) Chain(c provider.Category) []ChainEntry {
	sup := r.supporting(c)
	out := make([]ChainEntry, 0, len(sup))
	for _, d := range sup {
		out = append(out, ChainEntry{
			Name:               d.Name,
			Priority:           d.Priority(c),
			RequiresCredential: d.RequiresCredential,
			Enabled:            r.enabled(d),
			RequestsPerMinute:  d.RequestsPerMinute,
		})
	}
	return out
}

// Providers returns all declared providers in declaration order.
func (r *Registry) Providers() []provider.Descriptor {
	out := make([]provider.Descriptor, len(r.providers))
	copy(out, r.providers)
	return out
}

// Lookup returns the provider called name.
func (r *Registry) Lookup(name string) (provider.Descriptor, bool) {
	for _, d := range r.providers {
		if d.Name == name {
			return d, true
		}
	}
	return provider.Descriptor{}, false
}

func (r *Registry) supporting(c provider.Category) []provider.Descriptor {
	out := make([]provider.Descriptor, 0, len(r.providers))
	for _, d := range r.providers {
		if d.Supports(c) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority(c) < out[j].Priority(c)
	})
	return out
}

func (r *Registry) enabled(d provider.Descriptor) bool {
	if r.checker == nil {
		return !d.RequiresCredential
	}
	return r.checker.IsEnabled(d)
}
