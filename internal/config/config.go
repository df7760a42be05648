package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"marketdata/internal/provider"
)

// ErrInvalidConfig wraps every validation failure. Callers stop initialization.
var ErrInvalidConfig = errors.New("invalid configuration")

type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type Server struct {
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type Fetch struct {
	// Timeout bounds each adapter call.
	Timeout time.Duration `mapstructure:"timeout"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type SQLite struct {
	Path string `mapstructure:"path"`
}

type Cache struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is one of memory, redis, sqlite.
	Backend string `mapstructure:"backend"`
	// TTL overrides the freshness window per category name.
	TTL           map[string]time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration            `mapstructure:"sweep_interval"`
	Redis         Redis                    `mapstructure:"redis"`
	SQLite        SQLite                   `mapstructure:"sqlite"`
}

type RateLimit struct {
	// Mode is fixed_window or token_bucket.
	Mode string `mapstructure:"mode"`
}

// Provider holds the per provider overrides. APIKey is normally supplied
// through the environment, never committed to the YAML file.
type Provider struct {
	Enabled           bool           `mapstructure:"enabled"`
	BaseURL           string         `mapstructure:"base_url"`
	RequestsPerMinute int            `mapstructure:"rpm"`
	Priorities        map[string]int `mapstructure:"priorities"`
	APIKey            string         `mapstructure:"api_key"`
}

type Config struct {
	Log       Log                 `mapstructure:"log"`
	Server    Server              `mapstructure:"server"`
	Fetch     Fetch               `mapstructure:"fetch"`
	Cache     Cache               `mapstructure:"cache"`
	RateLimit RateLimit           `mapstructure:"ratelimit"`
	Providers map[string]Provider `mapstructure:"providers"`
}

// CredentialEnv maps provider names onto the environment variables holding
// their keys.
var CredentialEnv = map[string]string{
	"fmp":          "FMP_API_KEY",
	"alphavantage": "ALPHA_VANTAGE_KEY",
	"fred":         "FRED_API_KEY",
	"nasdaqdl":     "QUANDL_API_KEY",
}

// Loader reads configuration from .env, a YAML file and the environment.
// It keeps its own viper instance so Reload sees the same sources.
type Loader struct {
	path    string
	envFile string
	v       *viper.Viper
}

// NewLoader returns a Loader. An empty path searches marketdata.yaml in
// ./configs and the working directory; a missing file is not an error.
func NewLoader(path string) *Loader {
	return &Loader{path: path, envFile: ".env"}
}

// WithEnvFile changes the dotenv file read before the environment.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load reads every source. Variables already present in the environment win
// over the .env file.
func (l *Loader) Load() (*Config, error) {
	return l.read(godotenv.Load)
}

// Reload re-reads every source. The .env file overrides the environment so
// edited keys take effect without a restart.
func (l *Loader) Reload() (*Config, error) {
	return l.read(godotenv.Overload)
}

// Load is a shortcut for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func (l *Loader) read(dotenv func(...string) error) (*Config, error) {
	if l.envFile != "" {
		if err := dotenv(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", l.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if l.path != "" {
		v.SetConfigFile(l.path)
	} else {
		v.SetConfigName("marketdata")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(".", "configs"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MARKETDATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for name, env := range CredentialEnv {
		_ = v.BindEnv("providers."+name+".api_key", env)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l.v = v
	return &cfg, nil
}

// ConfigFileUsed returns the file the last successful load read, if any.
func (l *Loader) ConfigFileUsed() string {
	if l.v == nil {
		return ""
	}
	return l.v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", "30s")

	v.SetDefault("fetch.timeout", "5s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.sweep_interval", "1h")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "marketdata:cache:")
	v.SetDefault("cache.sqlite.path", filepath.Join("data", "cache", "marketdata.db"))

	v.SetDefault("ratelimit.mode", "fixed_window")

	v.SetDefault("providers.yahoo.enabled", true)
	v.SetDefault("providers.yahoo.rpm", 60)
	v.SetDefault("providers.fmp.enabled", true)
	v.SetDefault("providers.fmp.rpm", 10)
	v.SetDefault("providers.alphavantage.enabled", true)
	v.SetDefault("providers.alphavantage.rpm", 5)
	v.SetDefault("providers.fred.enabled", true)
	v.SetDefault("providers.fred.rpm", 120)
	v.SetDefault("providers.nasdaqdl.enabled", true)
	v.SetDefault("providers.nasdaqdl.rpm", 30)
}

// Validate checks the values that cannot be fixed by defaults.
func (c *Config) Validate() error {
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("%w: fetch.timeout must be positive", ErrInvalidConfig)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("%w: cache.backend %q is not one of memory, redis, sqlite", ErrInvalidConfig, c.Cache.Backend)
	}
	for name, d := range c.Cache.TTL {
		if _, err := provider.ParseCategory(name); err != nil {
			return fmt.Errorf("%w: cache.ttl: %w", ErrInvalidConfig, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: cache.ttl.%s must be positive", ErrInvalidConfig, name)
		}
	}
	switch c.RateLimit.Mode {
	case "", "fixed_window", "token_bucket":
	default:
		return fmt.Errorf("%w: ratelimit.mode %q is not one of fixed_window, token_bucket", ErrInvalidConfig, c.RateLimit.Mode)
	}
	for name, p := range c.Providers {
		if p.RequestsPerMinute < 0 {
			return fmt.Errorf("%w: providers.%s.rpm must not be negative", ErrInvalidConfig, name)
		}
		for cat := range p.Priorities {
			if _, err := provider.ParseCategory(cat); err != nil {
				return fmt.Errorf("%w: providers.%s.priorities: %w", ErrInvalidConfig, name, err)
			}
		}
	}
	return nil
}

// Credentials returns provider name -> API key for every configured provider.
func (c *Config) Credentials() map[string]string {
	out := make(map[string]string, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = strings.TrimSpace(p.APIKey)
	}
	return out
}

// TTLs returns the cache overrides keyed by category.
func (c *Config) TTLs() map[provider.Category]time.Duration {
	out := make(map[provider.Category]time.Duration, len(c.Cache.TTL))
	for name, d := range c.Cache.TTL {
		if cat, err := provider.ParseCategory(name); err == nil {
			out[cat] = d
		}
	}
	return out
}
