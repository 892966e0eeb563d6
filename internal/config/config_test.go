package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "options-analytics/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"KITE_API_KEY", "KITE_API_SECRET", "KITE_ACCESS_TOKEN", "POLYGON_API_KEY", "RISK_FREE_RATE", "LOG_LEVEL", "OPTIONS_ANALYTICS_DB"} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesTemplates(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	if err == nil && info.Mode().Perm() != 0600 {
		t.Errorf("credentials.toml mode = %v, want 0600", info.Mode().Perm())
	}

	if cfg.Analytics.ContractSize != 100 {
		t.Errorf("ContractSize = %d, want 100", cfg.Analytics.ContractSize)
	}
	if cfg.Analytics.RiskFreeRate != 0 {
		t.Errorf("RiskFreeRate = %v, want 0", cfg.Analytics.RiskFreeRate)
	}
	want := []string{"kite", "polygon", "sqlite"}
	if len(cfg.Providers.Priority) != len(want) {
		t.Fatalf("Priority = %v, want %v", cfg.Providers.Priority, want)
	}
	for i := range want {
		if cfg.Providers.Priority[i] != want[i] {
			t.Errorf("Priority[%d] = %s, want %s", i, cfg.Providers.Priority[i], want[i])
		}
	}
	if cfg.Providers.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Providers.Timeout)
	}
	if cfg.Providers.Retry.InitialDelay != 200*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 200ms", cfg.Providers.Retry.InitialDelay)
	}
	if cfg.Store.Path != filepath.Join(dir, "analytics.db") {
		t.Errorf("Store.Path = %s, want it under %s", cfg.Store.Path, dir)
	}
	if cfg.Dir() != dir {
		t.Errorf("Dir() = %s, want %s", cfg.Dir(), dir)
	}
}

func TestLoadReadsFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	config := `
[analytics]
risk_free_rate = 0.04
contract_size = 50

[providers]
priority = ["polygon", "sqlite"]
timeout = "3s"

[store]
path = "/tmp/other.db"
max_age = "1h"
`
	creds := `
[kite]
api_key = "kite-key"

[polygon]
api_key = "poly-key"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(creds), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Analytics.RiskFreeRate != 0.04 {
		t.Errorf("RiskFreeRate = %v, want 0.04", cfg.Analytics.RiskFreeRate)
	}
	if cfg.Analytics.ContractSize != 50 {
		t.Errorf("ContractSize = %d, want 50", cfg.Analytics.ContractSize)
	}
	if len(cfg.Providers.Priority) != 2 || cfg.Providers.Priority[0] != "polygon" {
		t.Errorf("Priority = %v", cfg.Providers.Priority)
	}
	if cfg.Providers.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Providers.Timeout)
	}
	// Unset keys keep their defaults
	if cfg.Providers.Retry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Providers.Retry.MaxAttempts)
	}
	if cfg.Store.Path != "/tmp/other.db" || cfg.Store.MaxAge != time.Hour {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Credentials.Kite.APIKey != "kite-key" || cfg.Credentials.Polygon.APIKey != "poly-key" {
		t.Errorf("Credentials = %+v", cfg.Credentials)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv("POLYGON_API_KEY", "from-env")
	t.Setenv("KITE_ACCESS_TOKEN", "token")
	t.Setenv("RISK_FREE_RATE", "0.05")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Credentials.Polygon.APIKey != "from-env" {
		t.Errorf("Polygon.APIKey = %q", cfg.Credentials.Polygon.APIKey)
	}
	if cfg.Credentials.Kite.AccessToken != "token" {
		t.Errorf("Kite.AccessToken = %q", cfg.Credentials.Kite.AccessToken)
	}
	if cfg.Analytics.RiskFreeRate != 0.05 {
		t.Errorf("RiskFreeRate = %v", cfg.Analytics.RiskFreeRate)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverrideBadRate(t *testing.T) {
	clearEnv(t)
	t.Setenv("RISK_FREE_RATE", "five percent")

	_, err := Load(t.TempDir())
	if !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Fatalf("Load() error = %v, want ErrConfigInvalid", err)
	}
}

func TestDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("POLYGON_API_KEY")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("POLYGON_API_KEY=dotenv-key\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("POLYGON_API_KEY") })

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Credentials.Polygon.APIKey != "dotenv-key" {
		t.Errorf("Polygon.APIKey = %q, want dotenv-key", cfg.Credentials.Polygon.APIKey)
	}
}

func validConfig() *Config {
	return &Config{
		Analytics: AnalyticsConfig{RiskFreeRate: 0.03, ContractSize: 100},
		Providers: ProvidersConfig{
			Priority: []string{"kite", "sqlite"},
			Retry:    RetryConfig{MaxAttempts: 1, BackoffFactor: 2},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"rate as percent", func(c *Config) { c.Analytics.RiskFreeRate = 5 }, true},
		{"negative rate", func(c *Config) { c.Analytics.RiskFreeRate = -0.01 }, false},
		{"zero contract size", func(c *Config) { c.Analytics.ContractSize = 0 }, true},
		{"empty priority", func(c *Config) { c.Providers.Priority = nil }, true},
		{"unknown provider", func(c *Config) { c.Providers.Priority = []string{"yahoo"} }, true},
		{"duplicate provider", func(c *Config) { c.Providers.Priority = []string{"kite", "KITE"} }, true},
		{"no attempts", func(c *Config) { c.Providers.Retry.MaxAttempts = 0 }, true},
		{"shrinking backoff", func(c *Config) { c.Providers.Retry.BackoffFactor = 0.5 }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"negative max age", func(c *Config) { c.Store.MaxAge = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("error %v does not wrap ErrConfigInvalid", err)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Credentials.Polygon.APIKey = "abcdefgh"
	cfg.Credentials.Kite.AccessToken = "xyz"

	r := cfg.Redacted()
	if r.Credentials.Polygon.APIKey != "ab****gh" {
		t.Errorf("APIKey = %q", r.Credentials.Polygon.APIKey)
	}
	if r.Credentials.Kite.AccessToken != "****" {
		t.Errorf("AccessToken = %q", r.Credentials.Kite.AccessToken)
	}
	if cfg.Credentials.Polygon.APIKey != "abcdefgh" {
		t.Error("Redacted modified the original")
	}
}
