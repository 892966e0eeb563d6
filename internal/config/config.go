// Package config provides configuration management for the options analytics tool.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "options-analytics/internal/errors"
)

// Provider names accepted in providers.priority.
const (
	ProviderKite    = "kite"
	ProviderPolygon = "polygon"
	ProviderSQLite  = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Analytics   AnalyticsConfig `mapstructure:"analytics"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Store       StoreConfig     `mapstructure:"store"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	UI          UIConfig        `mapstructure:"ui"`
	Credentials Credentials     `mapstructure:"-"` // Loaded separately

	dir string
}

// AnalyticsConfig holds pricing defaults.
type AnalyticsConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	ContractSize int     `mapstructure:"contract_size"`
	Workers      int     `mapstructure:"workers"` // 0 means one per CPU
}

// ProvidersConfig holds the data provider chain and its call policy.
type ProvidersConfig struct {
	Priority  []string        `mapstructure:"priority"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Cache     bool            `mapstructure:"cache"` // write results through to the store
	RateLimit float64         `mapstructure:"rate_limit"`
	Burst     int             `mapstructure:"burst"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Circuit   CircuitConfig   `mapstructure:"circuit"`
	Polygon   PolygonSettings `mapstructure:"polygon"`
}

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// CircuitConfig holds circuit breaker settings.
type CircuitConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// PolygonSettings holds Polygon specific settings.
type PolygonSettings struct {
	Currency string `mapstructure:"currency"`
}

// StoreConfig holds local store configuration.
type StoreConfig struct {
	Path   string        `mapstructure:"path"`
	MaxAge time.Duration `mapstructure:"max_age"` // 0 serves stored data of any age
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite    KiteCredentials    `mapstructure:"kite"`
	Polygon PolygonCredentials `mapstructure:"polygon"`
}

// KiteCredentials holds Kite Connect API credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// PolygonCredentials holds Polygon API credentials.
type PolygonCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-analytics"
	}
	return filepath.Join(home, ".config", "options-analytics")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and then read like any other file.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	cfg := &Config{dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string { return c.dir }

// loadDotEnv loads .env from the working directory and the config directory.
// Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analytics.risk_free_rate", 0.0)
	v.SetDefault("analytics.contract_size", 100)
	v.SetDefault("analytics.workers", 0)

	v.SetDefault("providers.priority", []string{ProviderKite, ProviderPolygon, ProviderSQLite})
	v.SetDefault("providers.timeout", "10s")
	v.SetDefault("providers.cache", true)
	v.SetDefault("providers.rate_limit", 3.0)
	v.SetDefault("providers.burst", 3)
	v.SetDefault("providers.retry.max_attempts", 3)
	v.SetDefault("providers.retry.initial_delay", "200ms")
	v.SetDefault("providers.retry.max_delay", "5s")
	v.SetDefault("providers.retry.backoff_factor", 2.0)
	v.SetDefault("providers.circuit.failure_threshold", 5)
	v.SetDefault("providers.circuit.success_threshold", 2)
	v.SetDefault("providers.circuit.timeout", "30s")
	v.SetDefault("providers.polygon.currency", "USD")

	v.SetDefault("store.path", "analytics.db")
	v.SetDefault("store.max_age", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", "logs/analytics.log")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "2006-01-02")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		// Config file not found, create template and read it back
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		return createTemplateCredentials(configDir)
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) error {
	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}

	// Polygon credentials
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Credentials.Polygon.APIKey = v
	}

	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return apperrors.Wrapf(apperrors.ErrConfigInvalid, "RISK_FREE_RATE %q is not a number", v)
		}
		cfg.Analytics.RiskFreeRate = rate
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPTIONS_ANALYTICS_DB"); v != "" {
		cfg.Store.Path = v
	}
	return nil
}

// resolvePaths makes relative file paths relative to the config directory.
func (c *Config) resolvePaths() {
	if c.Store.Path != "" && c.Store.Path != ":memory:" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(c.dir, c.Store.Path)
	}
	if c.Logging.FilePath != "" && !filepath.IsAbs(c.Logging.FilePath) {
		c.Logging.FilePath = filepath.Join(c.dir, c.Logging.FilePath)
	}
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true, "disabled": true, "off": true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, format, args...)
	}

	r := c.Analytics.RiskFreeRate
	if math.IsNaN(r) || math.IsInf(r, 0) || r < -1 || r > 1 {
		return invalid("risk_free_rate must be a decimal fraction between -1 and 1, got %v", r)
	}
	if c.Analytics.ContractSize <= 0 {
		return invalid("contract_size must be positive, got %d", c.Analytics.ContractSize)
	}
	if c.Analytics.Workers < 0 {
		return invalid("workers must be non-negative, got %d", c.Analytics.Workers)
	}

	if len(c.Providers.Priority) == 0 {
		return invalid("providers.priority must name at least one provider")
	}
	seen := make(map[string]bool)
	for _, name := range c.Providers.Priority {
		switch strings.ToLower(name) {
		case ProviderKite, ProviderPolygon, ProviderSQLite:
		default:
			return invalid("unknown provider %q (must be kite, polygon or sqlite)", name)
		}
		if seen[strings.ToLower(name)] {
			return invalid("provider %q listed twice", name)
		}
		seen[strings.ToLower(name)] = true
	}
	if c.Providers.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts must be at least 1")
	}
	if c.Providers.Retry.BackoffFactor < 1 {
		return invalid("retry.backoff_factor must be at least 1")
	}
	if c.Providers.Timeout < 0 || c.Store.MaxAge < 0 {
		return invalid("durations must be non-negative")
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("unknown log level %q", c.Logging.Level)
	}

	return nil
}

// Redacted returns a copy safe to print, with secrets masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Credentials.Kite.APISecret = mask(out.Credentials.Kite.APISecret)
	out.Credentials.Kite.AccessToken = mask(out.Credentials.Kite.AccessToken)
	out.Credentials.Polygon.APIKey = mask(out.Credentials.Polygon.APIKey)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
