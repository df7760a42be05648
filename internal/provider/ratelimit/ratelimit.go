package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"marketdata/internal/provider"
)

// Limiter admits or rejects a single upstream call. Allow never blocks.
type Limiter interface {
	Allow() bool
}

// Mode selects the limiter implementation built by NewSet.
type Mode string

const (
	// ModeFixedWindow counts calls in aligned one-minute windows.
	ModeFixedWindow Mode = "fixed_window"
	// ModeTokenBucket refills continuously at rpm/60 per second with a burst of rpm.
	ModeTokenBucket Mode = "token_bucket"
)

// ParseMode maps a configuration value onto a Mode. Empty selects the fixed window.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFixedWindow:
		return ModeFixedWindow, nil
	case ModeTokenBucket:
		return ModeTokenBucket, nil
	}
	return "", fmt.Errorf("unknown rate limit mode %q", s)
}

// FixedWindow allows at most Limit calls per Window. The counter resets when
// a call lands in a new window.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	started time.Time
	count   int
}

// NewFixedWindow returns a per-minute limiter admitting rpm calls.
// rpm <= 0 means unlimited.
func NewFixedWindow(rpm int, now func() time.Time) *FixedWindow {
	if now == nil {
		now = time.Now
	}
	return &FixedWindow{limit: rpm, window: time.Minute, now: now}
}

// Allow increments the window counter and reports whether the call fits.
// A rejected call does not consume quota.
func (f *FixedWindow) Allow() bool {
	if f.limit <= 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if f.started.IsZero() || now.Sub(f.started) >= f.window {
		f.started = now.Truncate(f.window)
		f.count = 0
	}
	if f.count >= f.limit {
		return false
	}
	f.count++
	return true
}

// TokenBucket wraps rate.Limiter in non-blocking mode.
type TokenBucket struct {
	lim *rate.Limiter
	now func() time.Time
}

// NewTokenBucket returns a limiter refilling rpm tokens per minute with a
// burst of rpm. rpm <= 0 means unlimited.
func NewTokenBucket(rpm int, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	if rpm <= 0 {
		return &TokenBucket{lim: rate.NewLimiter(rate.Inf, 0), now: now}
	}
	return &TokenBucket{
		lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		now: now,
	}
}

// Allow takes a token if one is available.
func (t *TokenBucket) Allow() bool { return t.lim.AllowN(t.now(), 1) }

// Set holds one limiter per provider name. Unknown names are unlimited.
type Set struct {
	limiters map[string]Limiter
}

// NewSet builds a limiter for every descriptor from its RequestsPerMinute.
func NewSet(mode Mode, now func() time.Time, descriptors ...provider.Descriptor) *Set {
	s := &Set{limiters: make(map[string]Limiter, len(descriptors))}
	for _, d := range descriptors {
		switch mode {
		case ModeTokenBucket:
			s.limiters[d.Name] = NewTokenBucket(d.RequestsPerMinute, now)
		default:
			s.limiters[d.Name] = NewFixedWindow(d.RequestsPerMinute, now)
		}
	}
	return s
}

// Allow reports whether provider name may be called now.
func (s *Set) Allow(name string) bool {
	if s == nil {
		return true
	}
	l, ok := s.limiters[name]
	if !ok {
		return true
	}
	return l.Allow()
}
