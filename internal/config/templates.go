package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Analytics Configuration

[analytics]
# Annualised risk-free rate as a decimal fraction (0.05 = 5%)
risk_free_rate = 0.0
# Shares per option contract used by payoff
contract_size = 100
# Workers for chain-wide greeks, 0 = one per CPU
workers = 0

[providers]
# Providers are tried in this order, the first non-empty answer wins.
# Known providers: kite, polygon, sqlite
priority = ["kite", "polygon", "sqlite"]
# Per-attempt timeout
timeout = "10s"
# Write fetched data through to the local store
cache = true
# Requests per second per provider
rate_limit = 3.0
burst = 3

[providers.retry]
max_attempts = 3
initial_delay = "200ms"
max_delay = "5s"
backoff_factor = 2.0

[providers.circuit]
failure_threshold = 5
success_threshold = 2
timeout = "30s"

[providers.polygon]
currency = "USD"

[store]
# Relative paths are resolved against this directory
path = "analytics.db"
# Oldest stored data served by the sqlite provider, "0s" = any age
max_age = "0s"

[logging]
level = "info"
file = true
file_path = "logs/analytics.log"
max_size = 100
max_backups = 7
max_age = 30

[ui]
color_enabled = true
date_format = "2006-01-02"
`

const credentialsTemplate = `# Options Analytics Credentials
# Keep this file secure! Values here can be overridden from the environment.

[kite]
api_key = ""
api_secret = ""
# Daily access token from the Kite Connect login flow
access_token = ""

[polygon]
api_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
