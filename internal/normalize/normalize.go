package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// intervalAliases normalizes the various spellings of bar intervals.
//
//	d, day, daily, 1day       -> 1d
//	w, wk, week, weekly, 1w   -> 1wk
//	mo, month, monthly        -> 1mo
//	h, hour, 1hour, 60m       -> 1h
//	min, 1min                 -> 1m
var intervalAliases = map[string]string{
	"1d":      "1d",
	"d":       "1d",
	"day":     "1d",
	"daily":   "1d",
	"1day":    "1d",
	"1wk":     "1wk",
	"1w":      "1wk",
	"w":       "1wk",
	"wk":      "1wk",
	"week":    "1wk",
	"weekly":  "1wk",
	"1mo":     "1mo",
	"mo":      "1mo",
	"month":   "1mo",
	"monthly": "1mo",
	"1h":      "1h",
	"h":       "1h",
	"hour":    "1h",
	"1hour":   "1h",
	"60m":     "1h",
	"60min":   "1h",
	"1m":      "1m",
	"min":     "1m",
	"1min":    "1m",
	"5m":      "5m",
	"5min":    "5m",
	"15m":     "15m",
	"15min":   "15m",
	"30m":     "30m",
	"30min":   "30m",
}

// Interval returns the canonical interval for s. Unknown values are
// lower-cased and passed through; the empty string stays empty and means
// "provider default" (daily).
func Interval(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return ""
	}
	if norm, ok := intervalAliases[v]; ok {
		return norm
	}
	return v
}

// Intraday reports whether the canonical interval is finer than a day.
func Intraday(interval string) bool {
	switch interval {
	case "1m", "5m", "15m", "30m", "1h":
		return true
	}
	return false
}

// Symbol trims and upper-cases a single symbol.
func Symbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Symbols normalizes each symbol, drops empties and removes duplicates while
// preserving the order of first occurrence.
func Symbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		n := Symbol(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Bound converts t to UTC, truncated to the day for daily or coarser
// intervals and to the minute for intraday ones.
func Bound(t time.Time, interval string) time.Time {
	t = t.UTC()
	if Intraday(interval) {
		return t.Truncate(time.Minute)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Key hashes the canonical form of a request into a hex cache key.
// Symbol order does not matter.
func Key(category string, symbols []string, start, end *time.Time, interval string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(category)
	b.WriteByte('|')
	b.WriteString(strings.Join(sorted, ","))
	b.WriteByte('|')
	if start != nil {
		b.WriteString(start.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	if end != nil {
		b.WriteString(end.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	b.WriteString(interval)

	sum := sha256.Sum256([]byte(b.String()))
	return category + ":" + hex.EncodeToString(sum[:])
}
