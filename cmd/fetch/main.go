// Command fetch performs one fetch through the fallback chain and prints the
// normalized result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"marketdata/internal/catalog"
	"marketdata/internal/config"
	"marketdata/internal/coordinator"
	"marketdata/internal/logging"
	"marketdata/internal/provider"
	"marketdata/internal/provider/cache"
)

const dateLayout = "2006-01-02"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "fetch:", err)
		os.Exit(1)
	}
}

type output struct {
	*provider.Result
	Stale bool   `json:"stale,omitempty"`
	Age   string `json:"age,omitempty"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		categoryName string
		symbolsCSV   string
		startS, endS string
		interval     string
		configPath   string
		timeout      time.Duration
		allowStale   bool
	)
	fs.StringVar(&categoryName, "category", getenv("CATEGORY", string(provider.PriceSeries)), "price_series, fundamentals, corporate_actions or macro_series")
	fs.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", ""), "comma-separated symbols or series ids")
	fs.StringVar(&startS, "start", "", "start date YYYY-MM-DD (optional)")
	fs.StringVar(&endS, "end", "", "end date YYYY-MM-DD (optional)")
	fs.StringVar(&interval, "interval", "", "bar interval, e.g. 1d, 1wk, 1h")
	fs.StringVar(&configPath, "config", getenv("MARKETDATA_CONFIG", ""), "path to marketdata.yaml (optional)")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	fs.BoolVar(&allowStale, "allow-stale", false, "print an expired cache entry when every provider failed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cat, err := provider.ParseCategory(categoryName)
	if err != nil {
		return err
	}
	start, err := parseDate(startS)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := parseDate(endS)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	req := provider.Request{Symbols: splitCSV(symbolsCSV), Start: start, End: end, Interval: interval}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, closer, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rt, err := catalog.Open(ctx, cfg, catalog.WithLogger(log))
	if err != nil {
		return err
	}
	defer rt.Close()

	// Lookup drops expired entries, so the fallback copy is taken first.
	var stale *cache.Entry
	if allowStale {
		if e, ok := rt.Cache.Peek(ctx, cat, req); ok {
			stale = e
		}
	}

	res, err := rt.Coordinator.Fetch(ctx, cat, req)
	out := output{Result: res}
	if errors.Is(err, coordinator.ErrAllProvidersFailed) && stale != nil {
		age := stale.Age(time.Now())
		log.WithFields(logrus.Fields{"category": cat, "age": age}).WithError(err).Warn("serving stale cache entry")
		out = output{Result: stale.Result, Stale: true, Age: age.Round(time.Second).String()}
		err = nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
