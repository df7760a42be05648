// Command sources validates the configuration and prints which providers are
// active for each category, as YAML.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"marketdata/internal/catalog"
	"marketdata/internal/config"
	"marketdata/internal/credentials"
	"marketdata/internal/provider"
	"marketdata/internal/provider/cache"
	"marketdata/internal/registry"
)

// errUncovered is returned in strict mode when a category has no usable provider.
var errUncovered = errors.New("categories without an enabled provider")

type providerReport struct {
	Name               string `yaml:"name"`
	RequiresCredential bool   `yaml:"requires_credential"`
	CredentialEnv      string `yaml:"credential_env,omitempty"`
	CredentialPresent  bool   `yaml:"credential_present"`
	RequestsPerMinute  int    `yaml:"rpm"`
}

type cacheReport struct {
	Enabled bool              `yaml:"enabled"`
	Backend string            `yaml:"backend"`
	TTL     map[string]string `yaml:"ttl"`
}

type report struct {
	ConfigFile         string                                      `yaml:"config_file"`
	FetchTimeout       string                                      `yaml:"fetch_timeout"`
	RateLimitMode      string                                      `yaml:"ratelimit_mode"`
	Cache              cacheReport                                 `yaml:"cache"`
	Providers          []providerReport                            `yaml:"providers"`
	MissingCredentials []string                                    `yaml:"missing_credentials"`
	Chains             map[provider.Category][]registry.ChainEntry `yaml:"chains"`
	Uncovered          []provider.Category                         `yaml:"uncovered,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "sources:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sources", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath string
		strict  bool
	)
	fs.StringVar(&cfgPath, "config", os.Getenv("MARKETDATA_CONFIG"), "path to marketdata.yaml (optional)")
	fs.BoolVar(&strict, "strict", false, "fail when a category has no enabled provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := config.NewLoader(cfgPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	keys := credentials.NewStore(cfg.Credentials())
	validator := credentials.NewValidator(keys)
	descriptors, err := catalog.Descriptors(cfg, keys)
	if err != nil {
		return err
	}
	reg, err := registry.New(validator, descriptors)
	if err != nil {
		return err
	}

	rep := buildReport(cfg, reg, validator, keys)
	rep.ConfigFile = loader.ConfigFileUsed()

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if strict && len(rep.Uncovered) > 0 {
		return fmt.Errorf("%w: %v", errUncovered, rep.Uncovered)
	}
	return nil
}

func buildReport(cfg *config.Config, reg *registry.Registry, v *credentials.Validator, keys credentials.Source) report {
	rep := report{
		FetchTimeout:       cfg.Fetch.Timeout.String(),
		RateLimitMode:      cfg.RateLimit.Mode,
		Cache:              cacheReport{Enabled: cfg.Cache.Enabled, Backend: cfg.Cache.Backend, TTL: map[string]string{}},
		MissingCredentials: v.Missing(reg.Providers()),
		Chains:             make(map[provider.Category][]registry.ChainEntry, len(provider.Categories)),
	}
	if rep.MissingCredentials == nil {
		rep.MissingCredentials = []string{}
	}

	ttls := cfg.TTLs()
	for _, c := range provider.Categories {
		d, ok := ttls[c]
		if !ok {
			d = cache.DefaultTTLs[c]
		}
		rep.Cache.TTL[string(c)] = d.String()

		chain := reg.Chain(c)
		rep.Chains[c] = chain
		if len(reg.ProvidersFor(c)) == 0 {
			rep.Uncovered = append(rep.Uncovered, c)
		}
	}

	for _, d := range reg.Providers() {
		rep.Providers = append(rep.Providers, providerReport{
			Name:               d.Name,
			RequiresCredential: d.RequiresCredential,
			CredentialEnv:      config.CredentialEnv[d.Name],
			CredentialPresent:  keys.Credential(d.Name) != "",
			RequestsPerMinute:  d.RequestsPerMinute,
		})
	}
	sort.Slice(rep.Providers, func(i, j int) bool { return rep.Providers[i].Name < rep.Providers[j].Name })
	return rep
}
