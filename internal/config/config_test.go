package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata/internal/config"
	"marketdata/internal/provider"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, "fixed_window", cfg.RateLimit.Mode)
	require.Equal(t, 60, cfg.Providers["yahoo"].RequestsPerMinute)
	require.Equal(t, 5, cfg.Providers["alphavantage"].RequestsPerMinute)
	require.True(t, cfg.Providers["fred"].Enabled)
	require.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_FileEnvAndDotenv(t *testing.T) {
	// Arrange: YAML file, .env file and a real environment variable.
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	writeFile(t, filepath.Join(dir, "configs"), "marketdata.yaml", `
fetch:
  timeout: 2s
cache:
  backend: sqlite
  ttl:
    macro_series: 48h
providers:
  yahoo:
    rpm: 30
    priorities:
      price_series: 3
  fmp:
    base_url: http://localhost:9999
`)
	writeFile(t, dir, ".env", "FMP_API_KEY=from-dotenv\nFRED_API_KEY=dotenv-fred\n")
	// godotenv only fills variables that are absent; Setenv restores the
	// original value once the test ends.
	t.Setenv("FMP_API_KEY", "")
	require.NoError(t, os.Unsetenv("FMP_API_KEY"))
	t.Setenv("ALPHA_VANTAGE_KEY", "")
	t.Setenv("FRED_API_KEY", "from-env")
	t.Setenv("MARKETDATA_CACHE_ENABLED", "false")

	// Act
	loader := config.NewLoader("")
	cfg, err := loader.Load()

	// Assert
	require.NoError(t, err)
	require.Equal(t, filepath.Join("configs", "marketdata.yaml"), relTo(t, dir, loader.ConfigFileUsed()))
	require.Equal(t, 2*time.Second, cfg.Fetch.Timeout)
	require.Equal(t, "sqlite", cfg.Cache.Backend)
	require.False(t, cfg.Cache.Enabled)
	require.Equal(t, map[provider.Category]time.Duration{provider.MacroSeries: 48 * time.Hour}, cfg.TTLs())
	require.Equal(t, 30, cfg.Providers["yahoo"].RequestsPerMinute)
	require.Equal(t, 3, cfg.Providers["yahoo"].Priorities["price_series"])
	require.Equal(t, "http://localhost:9999", cfg.Providers["fmp"].BaseURL)

	creds := cfg.Credentials()
	require.Equal(t, "from-dotenv", creds["fmp"])
	require.Equal(t, "from-env", creds["fred"])
	require.Empty(t, creds["alphavantage"])

	// Act: edit .env and reload.
	writeFile(t, dir, ".env", "FMP_API_KEY=rotated\n")
	cfg, err = loader.Reload()
	require.NoError(t, err)
	require.Equal(t, "rotated", cfg.Credentials()["fmp"])
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	for name, body := range map[string]string{
		"backend.yaml":  "cache:\n  backend: memcached\n",
		"timeout.yaml":  "fetch:\n  timeout: 0s\n",
		"mode.yaml":     "ratelimit:\n  mode: leaky\n",
		"rpm.yaml":      "providers:\n  yahoo:\n    rpm: -1\n",
		"category.yaml": "providers:\n  yahoo:\n    priorities:\n      crypto: 0\n",
		"ttl.yaml":      "cache:\n  ttl:\n    price_series: -1h\n",
	} {
		p := writeFile(t, dir, name, body)
		_, err := config.Load(p)
		require.ErrorIs(t, err, config.ErrInvalidConfig, name)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := config.Load("does-not-exist.yaml")
	require.Error(t, err)
}

func relTo(t *testing.T, base, p string) string {
	t.Helper()
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	require.NoError(t, err)
	base, err = filepath.EvalSymlinks(base)
	require.NoError(t, err)
	abs, err = filepath.EvalSymlinks(abs)
	require.NoError(t, err)
	rel, err := filepath.Rel(base, abs)
	require.NoError(t, err)
	return rel
}
